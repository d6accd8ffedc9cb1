// Package notify turns an admitted error event into one Payload and fans it out to the configured sinks.
//
// Sinks are addressed by their notification type, e.g. "email" or "chat-webhook". A Dispatcher calls
// every configured sink independently and reports each outcome as a Result, so a failing sink never
// prevents delivery through the others.
package notify
