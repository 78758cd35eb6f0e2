package stockimport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
)

// maxLineBytes bounds a single feed record.
const maxLineBytes = 64 << 10

// Level is an absolute stock level for one product.
type Level struct {
	ID       string
	Quantity int
}

// ParseLevel decodes a {"id","quantity"} record. Unknown fields are ignored.
func ParseLevel(line []byte) (Level, error) {
	var (
		l      Level
		hasQty bool
	)
	err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			l.ID = v
			return err
		case "quantity":
			v, err := d.Int()
			l.Quantity, hasQty = v, true
			return err
		default:
			return d.Skip()
		}
	})
	switch {
	case err != nil:
		return Level{}, errors.Wrap(err, "decode")
	case l.ID == "":
		return Level{}, errors.New("missing id")
	case !hasQty:
		return Level{}, errors.New("missing quantity")
	case l.Quantity < 0:
		return Level{}, errors.Errorf("negative quantity %d", l.Quantity)
	}
	return l, nil
}

// ReadFeed calls fn for every valid record of an uncompressed JSON-lines
// stream and returns the number of malformed records skipped. Blank lines
// are ignored.
func ReadFeed(ctx context.Context, r io.Reader, fn func(Level) error) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	invalid := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return invalid, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		l, err := ParseLevel(line)
		if err != nil {
			invalid++
			continue
		}
		if err := fn(l); err != nil {
			return invalid, err
		}
	}
	if err := scanner.Err(); err != nil {
		return invalid, errors.Wrap(err, "scan")
	}
	return invalid, nil
}

// readFile streams a gzip-compressed feed.
func readFile(ctx context.Context, path string, fn func(Level) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	n, err := ReadFeed(ctx, gz, fn)
	if err != nil {
		return n, errors.Wrapf(err, "read %s", path)
	}
	return n, nil
}
