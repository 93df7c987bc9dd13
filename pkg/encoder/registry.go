package encoder

import (
	"fmt"
	"sort"
)

// Algorithm tags known to the default registry.
const (
	TagNone         = "none"
	TagMD5          = "md5"
	TagSHA1         = "sha1"
	TagMD5V24       = "md5_v2.4"
	TagSHA1V24      = "sha1_v2.4"
	TagSHA256       = "sha256"
	TagSHA512       = "sha512"
	TagArgon2id     = "argon2id"
	TagPBKDF2SHA256 = "pbkdf2_sha256"
	TagBlowfish     = "blowfish"
	TagDatabase     = "db_native"
)

// Registry maps algorithm tags to encoders. It is built once at startup and
// never changes afterwards, so it needs no locking.
type Registry struct {
	encoders   map[string]Encoder
	defaultTag string
}

// NewRegistry copies encoders and checks that defaultTag names a selectable
// encoder.
func NewRegistry(defaultTag string, encoders map[string]Encoder) (*Registry, error) {
	if defaultTag == "" {
		return nil, fmt.Errorf("encoder: no default algorithm configured")
	}
	r := &Registry{
		encoders:   make(map[string]Encoder, len(encoders)),
		defaultTag: defaultTag,
	}
	for tag, e := range encoders {
		if tag == "" || e == nil {
			return nil, fmt.Errorf("encoder: empty tag or nil encoder in registry")
		}
		r.encoders[tag] = e
	}
	def, ok := r.encoders[defaultTag]
	if !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownAlgorithm, defaultTag)
	}
	if !IsSelectable(def) {
		return nil, fmt.Errorf("%w: default %q", ErrNotSelectable, defaultTag)
	}
	return r, nil
}

// Lookup resolves tag. An unregistered tag is ErrUnknownAlgorithm; there is
// no fallback to the default.
func (r *Registry) Lookup(tag string) (Encoder, error) {
	e, ok := r.encoders[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, tag)
	}
	return e, nil
}

// Default returns the tag and encoder used for newly set passwords.
func (r *Registry) Default() (string, Encoder) {
	return r.defaultTag, r.encoders[r.defaultTag]
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag string) bool {
	_, ok := r.encoders[tag]
	return ok
}

// Tags lists registered tags in sorted order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.encoders))
	for tag := range r.encoders {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

type options struct {
	native           NativeHasher
	pbkdf2Iterations int
	bcryptCost       int
}

// Option configures DefaultEncoders.
type Option func(*options)

// WithNativeHasher registers db_native backed by hasher.
func WithNativeHasher(hasher NativeHasher) Option {
	return func(o *options) {
		o.native = hasher
	}
}

// WithPBKDF2Iterations overrides the PBKDF2 iteration count for new hashes.
func WithPBKDF2Iterations(n int) Option {
	return func(o *options) {
		o.pbkdf2Iterations = n
	}
}

// WithBcryptCost overrides the bcrypt cost for new hashes.
func WithBcryptCost(cost int) Option {
	return func(o *options) {
		o.bcryptCost = cost
	}
}

// DefaultEncoders returns the standard tag set. md5 and sha1 are the legacy
// truncated encodings, md5_v2.4 and sha1_v2.4 their full-length successors.
func DefaultEncoders(salts SaltSource, opts ...Option) (map[string]Encoder, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	m := map[string]Encoder{
		TagNone:         None{},
		TagArgon2id:     NewArgon2id(salts),
		TagPBKDF2SHA256: NewPBKDF2SHA256(o.pbkdf2Iterations, salts),
		TagBlowfish:     NewBlowfish(o.bcryptCost),
	}

	for tag, alg := range map[string]string{TagMD5: "md5", TagSHA1: "sha1"} {
		e, err := NewLegacyHashV1(alg, salts)
		if err != nil {
			return nil, err
		}
		m[tag] = e
	}

	for tag, alg := range map[string]string{TagMD5V24: "md5", TagSHA1V24: "sha1", TagSHA256: "sha256", TagSHA512: "sha512"} {
		e, err := NewGenericHash(alg, salts)
		if err != nil {
			return nil, err
		}
		m[tag] = e
	}

	if o.native != nil {
		m[TagDatabase] = NewDatabaseNativeHash(o.native)
	}
	return m, nil
}

// NewDefaultRegistry builds a Registry over DefaultEncoders.
func NewDefaultRegistry(defaultTag string, salts SaltSource, opts ...Option) (*Registry, error) {
	encoders, err := DefaultEncoders(salts, opts...)
	if err != nil {
		return nil, err
	}
	return NewRegistry(defaultTag, encoders)
}
