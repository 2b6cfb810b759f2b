package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*JournalOptions)(nil)

// JournalOptions configures the SQLite operator journal.
type JournalOptions struct {
	// Path of the database file. Empty disables the journal.
	Path string `json:"path" mapstructure:"path"`
}

func NewJournalOptions() *JournalOptions {
	return &JournalOptions{}
}

func (o *JournalOptions) Validate() []error { return nil }

func (o *JournalOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, "journal.path", o.Path, "SQLite file the operator log is journaled to. Empty disables it.")
}
