package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/storyline/internal/format"
)

// PayloadVersion is written by Serialize. Any 1.x payload restores.
const PayloadVersion = "1.1"

// ErrUnsupportedPayload is returned for payloads that are not JSON or
// carry an unknown major version.
var ErrUnsupportedPayload = errors.New("unsupported payload")

// Payload is the persisted form of a formatting model. The Storage
// collaborator keeps it verbatim.
type Payload struct {
	Version  string           `json:"version"`
	Ranges   []format.Range   `json:"ranges"`
	Comments []format.Comment `json:"comments"`
}

// EncodePayload serializes ranges and comments at PayloadVersion.
func EncodePayload(ranges []format.Range, comments []format.Comment) ([]byte, error) {
	p := Payload{
		Version:  PayloadVersion,
		Ranges:   ranges,
		Comments: comments,
	}
	if p.Ranges == nil {
		p.Ranges = []format.Range{}
	}
	if p.Comments == nil {
		p.Comments = []format.Comment{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses a payload of any supported version.
//
// Entries are read leniently: a range with an unknown kind or a comment
// without a position is dropped and counted, never fatal. The model
// later clamps whatever survives to the text length.
func DecodePayload(data []byte) (Payload, int, error) {
	if !gjson.ValidBytes(data) {
		return Payload{}, 0, fmt.Errorf("%w: not valid JSON", ErrUnsupportedPayload)
	}

	version := gjson.GetBytes(data, "version")
	major := "0"
	if version.Exists() {
		major, _, _ = strings.Cut(version.String(), ".")
	}

	switch major {
	case "1":
	case "0":
		migrated, err := migrateLegacy(data)
		if err != nil {
			return Payload{}, 0, err
		}
		data = migrated
	default:
		return Payload{}, 0, fmt.Errorf("%w: version %q", ErrUnsupportedPayload, version.String())
	}

	p := Payload{Version: gjson.GetBytes(data, "version").String()}
	dropped := 0

	gjson.GetBytes(data, "ranges").ForEach(func(_, v gjson.Result) bool {
		r, ok := decodeRange(v)
		if !ok {
			dropped++
			return true
		}
		p.Ranges = append(p.Ranges, r)
		return true
	})

	gjson.GetBytes(data, "comments").ForEach(func(_, v gjson.Result) bool {
		c, ok := decodeComment(v)
		if !ok {
			dropped++
			return true
		}
		p.Comments = append(p.Comments, c)
		return true
	})

	return p, dropped, nil
}

func decodeRange(v gjson.Result) (format.Range, bool) {
	kind, err := format.ParseKind(v.Get("kind").String())
	if err != nil {
		return format.Range{}, false
	}
	start, end := v.Get("start"), v.Get("end")
	if start.Type != gjson.Number || end.Type != gjson.Number {
		return format.Range{}, false
	}

	r := format.Range{
		ID:    v.Get("id").String(),
		Start: int(start.Int()),
		End:   int(end.Int()),
		Kind:  kind,
		Level: int(v.Get("level").Int()),
	}
	if sd := v.Get("styleData"); sd.IsObject() {
		r.StyleData = make(map[string]string)
		sd.ForEach(func(k, val gjson.Result) bool {
			r.StyleData[k.String()] = val.String()
			return true
		})
	}
	return r, true
}

func decodeComment(v gjson.Result) (format.Comment, bool) {
	pos := v.Get("position")
	if pos.Type != gjson.Number {
		return format.Comment{}, false
	}
	c := format.Comment{
		ID:       v.Get("id").String(),
		Position: int(pos.Int()),
		Text:     v.Get("text").String(),
		Author:   v.Get("author").String(),
		Resolved: v.Get("resolved").Bool(),
	}
	if ts := v.Get("timestamp"); ts.Exists() {
		if t, err := time.Parse(time.RFC3339Nano, ts.String()); err == nil {
			c.Timestamp = t
		}
	}
	return c, true
}

// legacyKinds maps the tag-style kind names of 0.x payloads.
var legacyKinds = map[string]struct {
	kind  string
	level int
}{
	"b":          {"bold", 0},
	"strong":     {"bold", 0},
	"i":          {"italic", 0},
	"em":         {"italic", 0},
	"u":          {"underline", 0},
	"blockquote": {"quote", 0},
	"h1":         {"heading", 1},
	"h2":         {"heading", 2},
	"h3":         {"heading", 3},
	"h4":         {"heading", 4},
}

// migrateLegacy rewrites a 0.x payload in place: formats becomes
// ranges, and each entry's type/from/to become kind/start/end.
func migrateLegacy(data []byte) ([]byte, error) {
	var err error
	set := func(path string, value any) {
		if err == nil {
			data, err = sjson.SetBytes(data, path, value)
		}
	}
	setRaw := func(path, raw string) {
		if err == nil {
			data, err = sjson.SetRawBytes(data, path, []byte(raw))
		}
	}
	del := func(path string) {
		if err == nil {
			data, err = sjson.DeleteBytes(data, path)
		}
	}

	if formats := gjson.GetBytes(data, "formats"); formats.Exists() {
		if !gjson.GetBytes(data, "ranges").Exists() {
			setRaw("ranges", formats.Raw)
		}
		del("formats")
	}

	n := int(gjson.GetBytes(data, "ranges.#").Int())
	for i := range n {
		base := "ranges." + strconv.Itoa(i)
		entry := gjson.GetBytes(data, base)

		if typ := entry.Get("type"); typ.Exists() {
			if !entry.Get("kind").Exists() {
				name := typ.String()
				if alias, ok := legacyKinds[strings.ToLower(name)]; ok {
					name = alias.kind
					if alias.level > 0 && !entry.Get("level").Exists() {
						set(base+".level", alias.level)
					}
				}
				set(base+".kind", name)
			}
			del(base + ".type")
		}
		for from, to := range map[string]string{"from": "start", "to": "end"} {
			if old := entry.Get(from); old.Exists() {
				if !entry.Get(to).Exists() {
					setRaw(base+"."+to, old.Raw)
				}
				del(base + "." + from)
			}
		}
	}

	set("version", PayloadVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: migrate legacy payload: %w", ErrUnsupportedPayload, err)
	}
	return data, nil
}
