// SPDX-License-Identifier: MPL-2.0

package launch

// Variant is a named launch configuration seen in deployed images.
type Variant struct {
	Name        string
	Description string
	Config      Config
}

// Variants returns the three deployed launch configurations. They share one
// worker, eight threads and a disabled watchdog, and differ in how the port
// is chosen and in verbosity.
func Variants() []Variant {
	dynamic := Default()

	fixed := Default()
	fixed.Bind = BindSpec{Host: "0.0.0.0", Port: DefaultExpose, Policy: PolicyFixed}

	debug := Default()
	debug.LogLevel = LogLevelDebug

	return []Variant{
		{Name: "dynamic", Description: "binds $PORT, exposes 8000", Config: dynamic},
		{Name: "fixed", Description: "binds a literal 8000, exposes 8000", Config: fixed},
		{Name: "debug", Description: "binds $PORT with debug logging, exposes 8000", Config: debug},
	}
}

// LookupVariant returns the variant called name.
func LookupVariant(name string) (Variant, bool) {
	for _, v := range Variants() {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}
