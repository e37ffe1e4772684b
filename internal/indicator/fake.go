package indicator

// FakeOutput records every colour written, for test assertions.
type FakeOutput struct {
	// Colors contains every value passed to Set, in order.
	Colors []Color

	// SetError, if set, will be returned by Set.
	SetError error
}

// Set records c.
func (f *FakeOutput) Set(c Color) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Colors = append(f.Colors, c)
	return nil
}

// Last returns the most recent colour written, or black if none.
func (f *FakeOutput) Last() Color {
	if len(f.Colors) == 0 {
		return Color{}
	}
	return f.Colors[len(f.Colors)-1]
}
