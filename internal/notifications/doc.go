// Package notifications delivers terminal job outcomes via ntfy.
//
// The default implementation posts to the topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. EventSink
// plugs the service into the progress hub so only PUBLISHED and ERROR
// events produce a push.
package notifications
