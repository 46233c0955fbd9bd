package dialog

// Response is what the bot says back: plain text or a card. Transport
// adapters decide how to render it.
type Response struct {
	Text string `json:"text,omitempty"`
	Card *Card  `json:"card,omitempty"`
}

// Card is a structured message with selectable actions.
type Card struct {
	Title   string   `json:"title"`
	Blocks  []Block  `json:"blocks,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// Block kinds.
const (
	BlockText         = "text"
	BlockFacts        = "facts"
	BlockList         = "list"
	BlockLink         = "link"
	BlockPreformatted = "preformatted"
)

// Block is one section of a card body. Facts and lists use Items; text, link
// and preformatted blocks use Text.
type Block struct {
	Kind  string   `json:"kind"`
	Label string   `json:"label,omitempty"`
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// Action is a selectable choice. Input names a field the user must type
// before submitting, such as an authorization code.
type Action struct {
	Title   string            `json:"title"`
	ID      string            `json:"id"`
	Payload map[string]string `json:"payload,omitempty"`
	Input   string            `json:"input,omitempty"`
}

func textResponse(s string) Response { return Response{Text: s} }

func cardResponse(c *Card) Response { return Response{Card: c} }
