// Package media decides what happens to the attachment of a mined event:
// which extension it gets, whether policy allows fetching it, and where on
// disk it lands.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/tinyland-inc/tgminer/pkg/bus"
	"github.com/tinyland-inc/tgminer/pkg/filter"
)

const (
	ExtText    = ".txt"
	ExtWebp    = ".webp"
	ExtPhoto   = ".jpg"
	ExtUnknown = ".unknown"
	ExtNone    = ".none"
)

// DiscardedMarker replaces the path in a summary when the name filter
// rejected the file.
const DiscardedMarker = "NAME_FILTER DISCARDED FILE"

// ErrNoMedia is returned by Resolve for a nil ref or MediaNone.
var ErrNoMedia = errors.New("event carries no handled media")

// Extension infers the file extension for an attachment. Photos are always
// ExtPhoto. text/plain and image/webp are pinned; other types go through the
// MIME table, falling back to ExtUnknown for types it does not know and to
// ExtNone when no type was declared.
func Extension(kind bus.MediaKind, mimeType string) string {
	if kind == bus.MediaPhoto {
		return ExtPhoto
	}

	mt := normalizeMIME(mimeType)
	switch mt {
	case "":
		return ExtNone
	case "text/plain":
		return ExtText
	case "image/webp":
		return ExtWebp
	}

	if m := mimetype.Lookup(mt); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ExtUnknown
}

func normalizeMIME(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	return strings.ToLower(s)
}

// Disposition is the outcome computed for one attachment.
type Disposition int

const (
	DispositionFetched Disposition = iota
	DispositionDisabled
	DispositionDiscarded
)

func (d Disposition) String() string {
	switch d {
	case DispositionFetched:
		return "fetched"
	case DispositionDisabled:
		return "disabled"
	case DispositionDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// KindPolicy is the download toggle and optional name filter of one kind.
// A nil NameFilter accepts every name. Photos ignore NameFilter.
type KindPolicy struct {
	Download   bool
	NameFilter *filter.Pattern
}

// Policy holds a KindPolicy per media kind. Kinds without an entry are
// never downloaded.
type Policy struct {
	kinds map[bus.MediaKind]KindPolicy
}

func NewPolicy(kinds map[bus.MediaKind]KindPolicy) *Policy {
	p := &Policy{kinds: make(map[bus.MediaKind]KindPolicy, len(kinds))}
	for k, v := range kinds {
		p.kinds[k] = v
	}
	return p
}

func (p *Policy) For(kind bus.MediaKind) KindPolicy {
	if p == nil {
		return KindPolicy{}
	}
	return p.kinds[kind]
}

// AnyDownload reports whether at least one kind is downloaded.
func (p *Policy) AnyDownload() bool {
	if p == nil {
		return false
	}
	for _, kp := range p.kinds {
		if kp.Download {
			return true
		}
	}
	return false
}

// Fetcher is implemented by the chat client: it writes the bytes of ref to
// dest, blocking until the transfer finishes.
type Fetcher interface {
	FetchMedia(ctx context.Context, ref bus.MediaRef, dest string) error
}

// Descriptor is the resolved attachment of one event.
type Descriptor struct {
	Kind        bus.MediaKind
	MimeType    string
	FileName    string
	Extension   string
	Path        string
	Disposition Disposition
}

// Label is the human-readable name of the kind used in summaries.
func Label(kind bus.MediaKind) string {
	switch kind {
	case bus.MediaPhoto:
		return "Photo"
	case bus.MediaDocument:
		return "Document"
	case bus.MediaVideo:
		return "Video"
	case bus.MediaAudio:
		return "Audio"
	case bus.MediaVoice:
		return "Voice"
	case bus.MediaSticker:
		return "Sticker"
	case bus.MediaAnimation:
		return "Animation"
	case bus.MediaVideoNote:
		return "Video Note"
	default:
		return "Media"
	}
}

// DisabledMarker replaces the path in a summary when downloads of kind are
// turned off.
func DisabledMarker(kind bus.MediaKind) string {
	return strings.ToUpper(Label(kind)) + " DOWNLOADS DISABLED"
}

// Location is the resolved path, or the marker that stands in for it.
func (d Descriptor) Location() string {
	switch d.Disposition {
	case DispositionDisabled:
		return DisabledMarker(d.Kind)
	case DispositionDiscarded:
		return DiscardedMarker
	default:
		return d.Path
	}
}

// Summary is the media string stored in the index and written to logs, e.g.
// (Photo: /data/channels/1/x.jpg) or
// (Document: "application/pdf" - "report.pdf": /data/channels/1/y.pdf).
func (d Descriptor) Summary() string {
	if d.Kind == bus.MediaPhoto {
		return fmt.Sprintf("(Photo: %s)", d.Location())
	}
	name := ""
	if d.FileName != "" {
		name = fmt.Sprintf(` - "%s"`, d.FileName)
	}
	return fmt.Sprintf(`(%s: "%s"%s: %s)`, Label(d.Kind), d.MimeType, name, d.Location())
}

// Supported reports whether Resolve handles media of kind.
func Supported(kind bus.MediaKind) bool {
	switch kind {
	case bus.MediaPhoto, bus.MediaDocument, bus.MediaVideo, bus.MediaAudio, bus.MediaVoice,
		bus.MediaSticker, bus.MediaAnimation, bus.MediaVideoNote:
		return true
	default:
		return false
	}
}

// Resolver computes descriptors and performs the fetch when policy allows.
type Resolver struct {
	policy  *Policy
	fetcher Fetcher
	newName func() string
}

func NewResolver(policy *Policy, fetcher Fetcher) *Resolver {
	return &Resolver{
		policy:  policy,
		fetcher: fetcher,
		newName: uuid.NewString,
	}
}

// Resolve classifies ref and, when its disposition is DispositionFetched,
// fetches it into dir under a fresh random name. On a fetch error the
// descriptor is still returned alongside the error.
func (r *Resolver) Resolve(ctx context.Context, ref *bus.MediaRef, dir string) (Descriptor, error) {
	if ref == nil {
		return Descriptor{}, ErrNoMedia
	}

	if !Supported(ref.Kind) {
		return Descriptor{}, ErrNoMedia
	}

	var d Descriptor
	if ref.Kind == bus.MediaPhoto {
		d = r.resolvePhoto(ref, dir)
	} else {
		var err error
		if d, err = r.resolveFile(ref, dir); err != nil {
			return d, err
		}
	}

	if d.Disposition != DispositionFetched {
		return d, nil
	}
	if r.fetcher == nil {
		return d, fmt.Errorf("fetch %s: no media fetcher configured", ref.Kind)
	}
	if err := r.fetcher.FetchMedia(ctx, *ref, d.Path); err != nil {
		return d, fmt.Errorf("fetch %s to %s: %w", ref.Kind, d.Path, err)
	}
	return d, nil
}

func (r *Resolver) resolvePhoto(ref *bus.MediaRef, dir string) Descriptor {
	d := Descriptor{Kind: bus.MediaPhoto, Extension: ExtPhoto, Disposition: DispositionDisabled}
	if r.policy.For(bus.MediaPhoto).Download {
		d.Disposition = DispositionFetched
		d.Path = r.destination(dir, d.Extension)
	}
	return d
}

func (r *Resolver) resolveFile(ref *bus.MediaRef, dir string) (Descriptor, error) {
	d := Descriptor{
		Kind:        ref.Kind,
		MimeType:    ref.MimeType,
		FileName:    ref.FileName,
		Extension:   Extension(ref.Kind, ref.MimeType),
		Disposition: DispositionDisabled,
	}

	kp := r.policy.For(ref.Kind)
	if !kp.Download {
		return d, nil
	}

	ok, err := kp.NameFilter.Match(ref.FileName)
	if err != nil {
		return d, err
	}
	if !ok {
		d.Disposition = DispositionDiscarded
		return d, nil
	}

	d.Disposition = DispositionFetched
	d.Path = r.destination(dir, d.Extension)
	return d, nil
}

func (r *Resolver) destination(dir, ext string) string {
	p := filepath.Join(dir, r.newName()+ext)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
