package sensor

// FakeSampler is a Sampler for tests.
type FakeSampler struct {
	// Climate is returned by Sample.
	Climate Climate

	// SampleError, if set, will be returned by Sample.
	SampleError error

	Calls  int
	Closed bool
}

// Sample returns the configured climate or error.
func (f *FakeSampler) Sample() (Climate, error) {
	f.Calls++
	if f.SampleError != nil {
		return Climate{}, f.SampleError
	}
	return f.Climate, nil
}

// Close marks the sampler as closed.
func (f *FakeSampler) Close() error {
	f.Closed = true
	return nil
}
