package wire

import "encoding/json"

// EncodePacket serialises the given share names as an AdvertisementPacket
// datagram payload.
func EncodePacket(names []string) ([]byte, error) {
	return json.Marshal(AdvertisementPacket{Files: names})
}

// DecodePacket parses a received datagram payload. A malformed payload
// returns an error; the caller is expected to log and drop it, not to
// treat it as fatal.
func DecodePacket(b []byte) (AdvertisementPacket, error) {
	var p AdvertisementPacket
	err := json.Unmarshal(b, &p)
	return p, err
}

// EncodeRequestLine encodes a requested share name as the
// newline-terminated JSON string line the transfer protocol's request
// consists of.
func EncodeRequestLine(name string) ([]byte, error) {
	b, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// DecodeRequestLine parses a request line (without its trailing newline)
// back into the requested share name.
func DecodeRequestLine(line []byte) (string, error) {
	var name string
	err := json.Unmarshal(line, &name)
	return name, err
}
