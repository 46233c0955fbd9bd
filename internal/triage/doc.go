// Package triage is the classification and escalation core of firstline.
// It normalizes free-text alerts, detects the affected system, symptom and
// environment, derives severity, selects runbooks, renders executive
// summaries and gates L3 escalation. It also defines the Draft model and
// the SessionStore interface the dialog layer mutates drafts through.
package triage
