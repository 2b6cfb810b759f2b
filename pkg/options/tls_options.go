package options

import (
	"github.com/spf13/pflag"

	"github.com/daohu527/vconsole/pkg/security"
)

var _ IOptions = (*TLSOptions)(nil)

// TLSOptions names the PEM files used for HTTPS, WSS and MQTTS.
type TLSOptions struct {
	CertFile string `json:"cert-file" mapstructure:"cert-file"`
	KeyFile  string `json:"key-file" mapstructure:"key-file"`
	CAFile   string `json:"ca-file" mapstructure:"ca-file"`
}

func NewTLSOptions() *TLSOptions {
	return &TLSOptions{}
}

func (o *TLSOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if (o.CertFile == "") != (o.KeyFile == "") {
		errs = append(errs, errTLSPair)
	}
	return errs
}

func (o *TLSOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.CertFile, "tls.cert-file", o.CertFile, "PEM certificate presented to the peer.")
	fs.StringVar(&o.KeyFile, "tls.key-file", o.KeyFile, "PEM private key matching tls.cert-file.")
	fs.StringVar(&o.CAFile, "tls.ca-file", o.CAFile, "PEM CA used to verify the peer. System roots when empty.")
}

// Files converts the options into the security package's file set.
func (o *TLSOptions) Files() security.Files {
	return security.Files{CertFile: o.CertFile, KeyFile: o.KeyFile, CAFile: o.CAFile}
}
