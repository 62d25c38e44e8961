package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Translate is shown in the header; translations are requested when set.
	Translate bool

	EnableMouse bool `env:"HABLA_MOUSE"`
	BubbleWidth int  `env:"HABLA_BUBBLE_WIDTH" envDefault:"64"`

	// For debugging the UI
	ShowOpID bool `env:"HABLA_SHOW_OP_ID"`
}
