// Package render turns a user-supplied math expression into a PNG by running
// the typst engine as a subprocess inside a scratch workspace.
//
// Each call to Pipeline.Render owns one workspace for its whole lifetime:
//
//	acquire workspace → write math.typ → typst compile math.typ math.png
//	→ classify → read math.png → release workspace
//
// The result is an Outcome with exactly one of three shapes:
//   - Artifact: the engine exited 0 and wrote the image
//   - InputError: the engine exited non-zero; the message is the first line
//     of its stderr and is safe to show to the user
//   - InfrastructureError: the workspace could not be created, the engine
//     could not be spawned, crashed on a signal, timed out, or exited 0
//     without an image; the detail is logged and never shown to the user
//
// Timeout handling:
//   - Config.Timeout bounds each engine run (0 disables the bound)
//   - When it expires, SIGTERM is sent, then SIGKILL after Config.KillGrace
//
// Stderr is captured up to 64KB. No retries, no caching, no concurrency cap:
// concurrent renders are independent and share nothing but the workspace root.
package render
