package codec_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/contentledger/blockchain/foundation/blockchain/codec"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Layout(t *testing.T) {
	t.Log("Given the need to write fields in a fixed byte layout.")
	{
		const testID = 0
		t.Logf("\tTest %d:\tWhen writing one field of each kind.", testID)
		{
			w := codec.NewWriter(0)
			w.Uint8(codec.Version)
			w.Uint32(2)
			w.Uint64(3)
			w.String("ab")

			exp := []byte{
				0x01,
				0x00, 0x00, 0x00, 0x02,
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03,
				0x00, 0x00, 0x00, 0x02, 'a', 'b',
			}
			if !bytes.Equal(w.Encoded(), exp) {
				t.Fatalf("\t%s\tTest %d:\tShould write big-endian fixed width fields : %x", failed, testID, w.Encoded())
			}
			t.Logf("\t%s\tTest %d:\tShould write big-endian fixed width fields.", success, testID)

			r := codec.NewReader(w.Encoded())
			r.Version()
			if r.Uint32() != 2 || r.Uint64() != 3 || r.String() != "ab" {
				t.Fatalf("\t%s\tTest %d:\tShould read back the same values.", failed, testID)
			}
			if err := r.Done(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould consume the whole input : %s", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould read back the same values.", success, testID)
		}
	}
}

func Test_ReaderErrors(t *testing.T) {
	type table struct {
		name string
		data []byte
		read func(r *codec.Reader)
		err  error
	}

	tt := []table{
		{
			name: "short",
			data: []byte{0x00, 0x01},
			read: func(r *codec.Reader) { r.Uint32() },
			err:  codec.ErrShortBuffer,
		},
		{
			name: "trailing",
			data: []byte{0x01, 0xff},
			read: func(r *codec.Reader) { r.Uint8() },
			err:  codec.ErrTrailingBytes,
		},
		{
			name: "version",
			data: []byte{0x02},
			read: func(r *codec.Reader) { r.Version() },
			err:  codec.ErrVersion,
		},
		{
			name: "oversized",
			data: []byte{0xff, 0xff, 0xff, 0xff},
			read: func(r *codec.Reader) { r.Bytes() },
			err:  codec.ErrFieldTooLarge,
		},
		{
			name: "sticky",
			data: []byte{0x00},
			read: func(r *codec.Reader) {
				r.Uint64()
				r.Uint8()
			},
			err: codec.ErrShortBuffer,
		},
	}

	t.Log("Given the need to reject malformed input.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen reading %s input.", testID, tst.name)
			{
				f := func(t *testing.T) {
					r := codec.NewReader(tst.data)
					tst.read(r)

					if err := r.Done(); !errors.Is(err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould fail with %v : got %v", failed, testID, tst.err, err)
					}
					t.Logf("\t%s\tTest %d:\tShould fail with %v.", success, testID, tst.err)
				}

				t.Run(tst.name, f)
			}
		}
	}
}
