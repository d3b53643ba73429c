// Package inbox turns incoming FedRAMP messages into deadline notices.
//
// A Service receives messages one at a time, skips ones it has already
// handled, classifies the rest into an urgency tier, asks the deadline
// engine when a response is due, and hands the rendered Notice to a
// Notifier.
package inbox
