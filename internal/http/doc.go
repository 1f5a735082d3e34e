// Package http exposes the live session scheduler over JSON.
//
// Every route except /healthz and /stream/verify requires an
// "Authorization: Bearer <jwt>" header whose sub claim names the caller.
//
//   - GET /healthz: storage liveness. 200 {"status":"ok"} or 503.
//   - POST /stream/verify: {"token"} from the streaming provider. 200 with the
//     grant, 401 when the token is forged, expired or its session is gone.
//   - GET /courses/{courseID}/next-session: the live or next occurrence of a
//     course with the caller's join decision. Response {"success",
//     "session": sessionDTO}. 404 when the course is unknown or has no session
//     left, 403 when the caller is neither teacher nor enrolled.
//   - POST /sessions/{sessionID}/join: admits the caller. Response
//     {"success","session","stream_data":{"channel","token","uid","role",
//     "expires_at"}}. 409 with "reason" and "minutes_until_start" when the
//     join window is closed.
//   - POST /sessions/{sessionID}/leave: closes attendance. The teacher closes
//     every open row, a student their own (404 when not joined).
//   - GET /sessions/{sessionID}/attendance: teacher only, join and leave times.
//   - GET /sessions/upcoming: sessions of the caller's enrolled courses within
//     the configured horizon, ordered by start.
//   - GET /courses/{courseID}/schedule, PUT /courses/{courseID}/schedule: read
//     or replace the validity window and weekly slots. Only the teacher may
//     replace; field errors come back as 422 {"errors":{field: message}}.
//
// DTOs live next to the handlers that produce them.
package http
