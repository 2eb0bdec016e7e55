package common

import (
	"errors"
	"io"
	"os"
	"path"

	ini "github.com/lars-t-hansen/ini"
)

// Site and user defaults for the anomaly thresholds come from ~/.nodestat.  Command line flags win
// over dotfile values; dotfile values win over built-in defaults.

// MT: Constant after initialization
var (
	p     = ini.NewParser()
	store *ini.Store

	thresholds             = p.AddSection("thresholds")
	ThresholdCpuLoadDelta1 = thresholds.AddString("cpu-load-delta1")
	ThresholdCpuLoadDelta2 = thresholds.AddString("cpu-load-delta2")
	ThresholdFreeMemFrac1  = thresholds.AddString("free-mem-frac1")
	ThresholdFreeMemFrac2  = thresholds.AddString("free-mem-frac2")
	ThresholdGracePeriod   = thresholds.AddString("grace-period")

	states        = p.AddSection("states")
	StatesProblem = states.AddString("problem")
)

func init() {
	home := os.Getenv("HOME")
	if home == "" {
		return
	}
	fn := path.Join(path.Clean(home), ".nodestat")
	input, err := os.Open(fn)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			Log.Errorf("Error in trying to open %s: %s", fn, err.Error())
		}
		return
	}
	defer input.Close()
	if err := ReadDefaults(input); err != nil {
		Log.Errorf("Error in trying to parse %s: %s", fn, err.Error())
	}
}

// ReadDefaults parses a defaults document and installs it as the active store.  The normal caller
// is init(), reading ~/.nodestat; tests substitute their own document.

func ReadDefaults(input io.Reader) error {
	s, err := p.Parse(input)
	if err != nil {
		return err
	}
	store = s
	return nil
}

func HasDefault(f *ini.Field) bool {
	return store != nil && f.Present(store)
}

func ApplyDefault(sp *string, f *ini.Field) bool {
	if *sp != "" || store == nil || !f.Present(store) {
		return false
	}
	*sp = os.ExpandEnv(f.StringVal(store))
	return true
}
