package cog

// Cog is a self-contained bot feature. Init wires handlers onto the session
// the cog was constructed with; slash commands are registered once the
// session reports Ready.
type Cog interface {
	Name() string
	Init() error
}
