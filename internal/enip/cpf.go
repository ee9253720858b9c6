package enip

import (
	"fmt"

	"github.com/tturner/cipstack/internal/cip/codec"
)

// Common Packet Format item types.
const (
	ItemNullAddress      uint16 = 0x0000
	ItemListIdentity     uint16 = 0x000C
	ItemConnectedAddress uint16 = 0x00A1
	ItemConnectedData    uint16 = 0x00B1
	ItemUnconnectedData  uint16 = 0x00B2
	ItemListServices     uint16 = 0x0100
	ItemSockaddrOtoT     uint16 = 0x8000
	ItemSockaddrTtoO     uint16 = 0x8001
	ItemSequencedAddress uint16 = 0x8002
)

// Item is one Common Packet Format item.
type Item struct {
	Type uint16
	Data []byte
}

// EncodeCPF returns the item count followed by the items.
func EncodeCPF(items ...Item) []byte {
	n := 2
	for _, it := range items {
		n += 4 + len(it.Data)
	}
	out := make([]byte, 0, n)
	out = codec.AppendUint16(out, uint16(len(items)))
	for _, it := range items {
		out = codec.AppendUint16(out, it.Type)
		out = codec.AppendUint16(out, uint16(len(it.Data)))
		out = append(out, it.Data...)
	}
	return out
}

// DecodeCPF parses a Common Packet Format block that must fill data.
func DecodeCPF(data []byte) ([]Item, error) {
	cur := codec.NewCursor(data, 0)
	count, err := cur.Uint16()
	if err != nil {
		return nil, fmt.Errorf("cpf item count: %w", err)
	}
	items := make([]Item, 0, count)
	for i := 0; i < int(count); i++ {
		typ, err := cur.Uint16()
		if err != nil {
			return nil, fmt.Errorf("cpf item %d: %w", i, err)
		}
		length, err := cur.Uint16()
		if err != nil {
			return nil, fmt.Errorf("cpf item %d: %w", i, err)
		}
		body, err := cur.Next(int(length))
		if err != nil {
			return nil, fmt.Errorf("cpf item %d: %w", i, err)
		}
		items = append(items, Item{Type: typ, Data: body})
	}
	if cur.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after %d cpf items", codec.ErrMalformed, cur.Remaining(), count)
	}
	return items, nil
}

// FindItem returns the first item of type typ.
func FindItem(items []Item, typ uint16) (Item, bool) {
	for _, it := range items {
		if it.Type == typ {
			return it, true
		}
	}
	return Item{}, false
}
