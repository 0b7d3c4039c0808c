package session

import "testing"

// FuzzSessionDecode feeds arbitrary bytes to the record decoder. It must never
// panic, and anything it accepts must survive another round trip.
func FuzzSessionDecode(f *testing.F) {
	encoded, err := Encode(&Session{
		SessionID:      "sid-fuzz",
		Identifier:     "user1@example.com",
		Role:           "admin",
		Admin:          true,
		RememberMe:     true,
		TimeoutSeconds: 1800,
		CreatedAt:      1700000000,
		LastSeenAt:     1700000060,
	})
	if err != nil {
		f.Fatalf("encode seed: %v", err)
	}
	f.Add(encoded)
	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1, 0xff, 0xff})
	f.Add([]byte{255, 255, 255})
	f.Add(encoded[:len(encoded)/2])

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(s)
		if err != nil {
			t.Fatalf("re-encode of decoded record failed: %v", err)
		}
		back, err := Decode(again)
		if err != nil {
			t.Fatalf("decode of re-encoded record failed: %v", err)
		}
		if *back != *s {
			t.Fatalf("round trip mismatch: %+v != %+v", back, s)
		}
	})
}
