// Package encoder provides the pluggable password encoders and the registry
// that resolves a record's algorithm tag to one of them.
//
// Every stored password carries the tag of the encoder that produced it, so
// records stay verifiable after the default algorithm changes:
//
//	registry, err := encoder.NewDefaultRegistry(encoder.TagArgon2id, random.New())
//	enc, err := registry.Lookup(record.AlgorithmTag)
//	ok, err := enc.Verify(ctx, record.EncodedPassword, password, record.Salt)
//
// The registry is immutable once built and is passed to the services that
// need it.
package encoder
