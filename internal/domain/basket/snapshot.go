package basket

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Snapshot is the persisted form of a basket. PromotionCode is the code
// applied to the basket when it was saved, if any.
type Snapshot struct {
	Lines         []Line
	PromotionCode string
	SavedAt       time.Time
}

// Store persists basket snapshots keyed by session.
type Store interface {
	Save(ctx context.Context, sessionID string, s Snapshot) error
	// Load returns an empty snapshot when nothing is stored for the session.
	Load(ctx context.Context, sessionID string) (Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// StorageError is a non-fatal warning: the mutation is applied in memory but
// the durable copy may be stale.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("basket %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// EncodeSnapshot serializes s to JSON.
func EncodeSnapshot(s Snapshot) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("saved_at")
	e.Str(s.SavedAt.UTC().Format(time.RFC3339Nano))
	if s.PromotionCode != "" {
		e.FieldStart("promotion_code")
		e.Str(s.PromotionCode)
	}
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range s.Lines {
		encodeLine(&e, l)
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

// EncodeLines serializes lines as a JSON array.
func EncodeLines(lines []Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		encodeLine(&e, l)
	}
	e.ArrEnd()
	return e.Bytes()
}

// DecodeLines parses the output of EncodeLines.
func DecodeLines(data []byte) ([]Line, error) {
	var lines []Line
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		l, err := decodeLine(d)
		if err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode basket lines")
	}
	return lines, nil
}

func encodeLine(e *jx.Encoder, l Line) {
	e.ObjStart()
	e.FieldStart("item_id")
	e.Int64(l.ItemID)
	e.FieldStart("vendor_id")
	e.Int64(l.VendorID)
	e.FieldStart("name")
	e.Str(l.Name)
	e.FieldStart("unit_price")
	e.Int64(l.UnitPrice)
	e.FieldStart("options")
	e.ArrStart()
	for _, o := range l.Options {
		e.Str(o)
	}
	e.ArrEnd()
	if l.Note != "" {
		e.FieldStart("note")
		e.Str(l.Note)
	}
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.ObjEnd()
}

// DecodeSnapshot parses the output of EncodeSnapshot. Unknown fields are skipped.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "saved_at":
			raw, err := d.Str()
			if err != nil {
				return err
			}
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return errors.Wrap(err, "parse saved_at")
			}
			s.SavedAt = t
			return nil
		case "promotion_code":
			v, err := d.Str()
			s.PromotionCode = v
			return err
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeLine(d)
				if err != nil {
					return err
				}
				s.Lines = append(s.Lines, l)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "decode basket snapshot")
	}
	return s, nil
}

func decodeLine(d *jx.Decoder) (Line, error) {
	var l Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "item_id":
			l.ItemID, err = d.Int64()
		case "vendor_id":
			l.VendorID, err = d.Int64()
		case "name":
			l.Name, err = d.Str()
		case "unit_price":
			l.UnitPrice, err = d.Int64()
		case "options":
			err = d.Arr(func(d *jx.Decoder) error {
				o, err := d.Str()
				if err != nil {
					return err
				}
				l.Options = append(l.Options, o)
				return nil
			})
		case "note":
			l.Note, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}
