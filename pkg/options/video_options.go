package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*VideoOptions)(nil)

// VideoOptions selects what happens to received video frames.
type VideoOptions struct {
	// RecordPath, when set, appends every frame to this file.
	RecordPath string `json:"record-path" mapstructure:"record-path"`
	// MaxFrameBytes caps a single websocket message.
	MaxFrameBytes int64 `json:"max-frame-bytes" mapstructure:"max-frame-bytes"`
}

func NewVideoOptions() *VideoOptions {
	return &VideoOptions{MaxFrameBytes: 4 << 20}
}

func (o *VideoOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("video.max-frame-bytes must be positive"))
	}
	return errs
}

func (o *VideoOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.RecordPath, "video.record-path", o.RecordPath, "File received video frames are appended to.")
	fs.Int64Var(&o.MaxFrameBytes, "video.max-frame-bytes", o.MaxFrameBytes, "Largest accepted video frame.")
}
