package encoding

import (
	"strings"
	"sync"
	"testing"
)

func TestUnmarshal_DocumentShapes(t *testing.T) {
	original := map[string]interface{}{
		"_id":    "01HZX3",
		"status": "open",
		"qty":    42,
		"price":  9.5,
		"tags":   []string{"a", "b"},
		"customer": map[string]interface{}{
			"name": "ada",
		},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var doc map[string]interface{}
	if err := Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if v, ok := doc["_id"].(string); !ok || v != "01HZX3" {
		t.Errorf("_id: got %T %v", doc["_id"], doc["_id"])
	}
	if v, ok := doc["qty"].(int64); !ok || v != 42 {
		t.Errorf("qty: got %T %v, want int64", doc["qty"], doc["qty"])
	}
	if v, ok := doc["price"].(float64); !ok || v != 9.5 {
		t.Errorf("price: got %T %v", doc["price"], doc["price"])
	}
	tags, ok := doc["tags"].([]interface{})
	if !ok || len(tags) != 2 {
		t.Fatalf("tags: got %T %v, want []interface{}", doc["tags"], doc["tags"])
	}
	if _, ok := tags[0].(string); !ok {
		t.Errorf("tags[0]: got %T, want string", tags[0])
	}
	customer, ok := doc["customer"].(map[string]interface{})
	if !ok {
		t.Fatalf("customer: got %T, want map[string]interface{}", doc["customer"])
	}
	if customer["name"] != "ada" {
		t.Errorf("customer.name: got %v", customer["name"])
	}
}

func TestMarshal_StableKeyOrder(t *testing.T) {
	a := map[string]interface{}{"z": 1, "a": 2, "m": 3}
	b := map[string]interface{}{"m": 3, "z": 1, "a": 2}

	da, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	db, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(da) != string(db) {
		t.Error("expected identical encodings for equal maps")
	}
}

func TestEncodeDocument_SmallStaysRaw(t *testing.T) {
	data, err := EncodeDocument(map[string]interface{}{"_id": "1", "n": 1})
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	if data[0] != frameRaw {
		t.Fatalf("expected raw frame, got 0x%02x", data[0])
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	if doc["_id"] != "1" {
		t.Errorf("_id: got %v", doc["_id"])
	}
}

func TestEncodeDocument_LargeIsCompressed(t *testing.T) {
	body := strings.Repeat("pagination ", 500)
	data, err := EncodeDocument(map[string]interface{}{"_id": "big", "body": body})
	if err != nil {
		t.Fatalf("EncodeDocument failed: %v", err)
	}
	if data[0] != frameZstd {
		t.Fatalf("expected zstd frame, got 0x%02x", data[0])
	}
	if len(data) >= len(body) {
		t.Errorf("expected compression, got %d bytes for %d byte body", len(data), len(body))
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		t.Fatalf("DecodeDocument failed: %v", err)
	}
	if doc["body"] != body {
		t.Error("body mismatch after round trip")
	}
}

func TestDecodeDocument_BadFrames(t *testing.T) {
	if _, err := DecodeDocument(nil); err == nil {
		t.Error("expected error for empty frame")
	}
	if _, err := DecodeDocument([]byte{0x7F, 0x01}); err == nil {
		t.Error("expected error for unknown frame header")
	}
	if _, err := DecodeDocument([]byte{frameZstd, 0x01, 0x02}); err == nil {
		t.Error("expected error for corrupt zstd payload")
	}
}

func TestEncodeDocument_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	big := strings.Repeat("x", 4*CompressThreshold)

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				data, err := EncodeDocument(map[string]interface{}{"g": id, "i": j, "body": big})
				if err != nil {
					t.Errorf("EncodeDocument failed: %v", err)
					return
				}
				if _, err := DecodeDocument(data); err != nil {
					t.Errorf("DecodeDocument failed: %v", err)
					return
				}
			}
		}(i)
	}

	wg.Wait()
}

func BenchmarkEncodeDocument(b *testing.B) {
	doc := map[string]interface{}{
		"_id":    "01HZX3",
		"status": "open",
		"values": []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		"nested": map[string]string{"key": "value"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = EncodeDocument(doc)
	}
}
