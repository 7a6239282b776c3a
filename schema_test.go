package themis

import "testing"

func rangeDescriptor() Descriptor {
	return Descriptor{
		ID:    1,
		Group: "image_acquisition",
		Name:  "image_width",
		Kind:  KindI32,
		Default: I32Value(256),
		Validation: Validation{Kind: ValidationRange, Min: 256, Max: 2048},
	}
}

func allowedValuesDescriptor() Descriptor {
	return Descriptor{
		ID:      2,
		Group:   "image_acquisition",
		Name:    "resolution",
		Kind:    KindI32,
		Default: I32Value(256),
		Validation: Validation{
			Kind:          ValidationAllowedValues,
			AllowedValues: []Value{I32Value(256), I32Value(512), I32Value(1024)},
		},
	}
}

func TestDescriptorValidateRange(t *testing.T) {
	d := rangeDescriptor()

	if err := d.Validate(I32Value(1024)); err != nil {
		t.Fatalf("in-range value rejected: %v", err)
	}
	if err := d.Validate(I32Value(2049)); !isOutOfRange(err) {
		t.Fatalf("expected out-of-range error, got %v", err)
	}
	if err := d.Validate(I32Value(255)); !isOutOfRange(err) {
		t.Fatalf("expected out-of-range error, got %v", err)
	}
}

func TestDescriptorValidateAllowedValues(t *testing.T) {
	d := allowedValuesDescriptor()

	if err := d.Validate(I32Value(512)); err != nil {
		t.Fatalf("allowed value rejected: %v", err)
	}
	if err := d.Validate(I32Value(999)); ErrorCode(err) != ErrCodeNotAllowed {
		t.Fatalf("expected not-allowed error for disallowed value, got %v", err)
	}
}

func TestDescriptorValidateKindMismatch(t *testing.T) {
	d := rangeDescriptor()
	if err := d.Validate(StringValue("256")); !isTypeMismatch(err) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestDescriptorValidateConstAlwaysRejected(t *testing.T) {
	d := rangeDescriptor()
	d.IsConst = true
	if err := d.Validate(I32Value(256)); ErrorCode(err) != ErrCodeConstParameter {
		t.Fatalf("expected const-parameter error, got %v", err)
	}
}

func TestDescriptorValidateCustomCallbackAcceptsEverything(t *testing.T) {
	d := rangeDescriptor()
	d.Validation = Validation{Kind: ValidationCustomCallback}
	if err := d.Validate(I32Value(-99999)); err != nil {
		t.Fatalf("custom callback validation should accept every value, got %v", err)
	}
}

func TestValuesEqual(t *testing.T) {
	if !valuesEqual(I32Value(5), I32Value(5)) {
		t.Fatal("expected equal i32 values to compare equal")
	}
	if valuesEqual(I32Value(5), I32Value(6)) {
		t.Fatal("expected unequal i32 values to compare unequal")
	}
	if !valuesEqual(BlobValue([]byte{1, 2}), BlobValue([]byte{1, 2})) {
		t.Fatal("expected equal blob values to compare equal")
	}
	if valuesEqual(I32Value(5), StringValue("5")) {
		t.Fatal("expected different kinds to never compare equal")
	}
}

func TestByName(t *testing.T) {
	descs := []Descriptor{rangeDescriptor(), allowedValuesDescriptor()}
	byName := ByName(descs)

	if len(byName) != 2 {
		t.Fatalf("len(byName) = %d, want 2", len(byName))
	}
	if byName["image_acquisition.image_width"].ID != 1 {
		t.Fatal("ByName lookup returned wrong descriptor")
	}
}

func isOutOfRange(err error) bool {
	return ErrorCode(err) == ErrCodeOutOfRange
}
