// Package deadline computes response deadlines for classified inbox messages.
// High tier messages get a flat twelve hour window; Moderate and Low tier
// messages are due at 15:00 US Eastern after two or three business days.
package deadline
