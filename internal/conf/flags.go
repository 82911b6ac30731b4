package conf

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/playrec/internal/errors"
)

// BindFlags binds configuration keys to command line flags so that a flag set on the
// command line overrides the file and the environment. bindings maps keys to flag names.
func BindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			return errors.Newf("flag %q for key %q not defined", name, key).
				Component("config").
				Category(errors.CategoryConfiguration).
				Build()
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return errors.New(err).
				Component("config").
				Category(errors.CategoryConfiguration).
				Context("flag", name).
				Build()
		}
	}
	return nil
}
