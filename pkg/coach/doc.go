// Package coach is the client SDK for the voicecoach realtime wellness
// coaching service.
//
// A Client wraps the session REST API (create, inspect, end) and opens
// realtime Channels: one reconnecting WebSocket per session carrying
// typed JSON envelopes. Speech transcripts go up as user_speech events;
// coach responses, safety alerts, and session-closure suggestions come
// back down. See the session package for the controller that turns
// channel events into conversation state.
//
//	client := coach.NewClient(coach.WithBaseURL("https://coach.example.com"))
//	sess, err := client.CreateSession(ctx, "")
//	if err != nil { ... }
//	ch := client.Channel(sess.SessionID, coach.OnEvent(handle))
//	if err := ch.Connect(ctx); err != nil { ... }
//	defer ch.Disconnect()
package coach
