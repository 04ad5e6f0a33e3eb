package errors

import (
	"math"
	"testing"
)

func TestValidateCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		x, y    float64
		wantErr bool
	}{
		{"finite", 1.5, -2, false},
		{"zero", 0, 0, false},
		{"nan x", math.NaN(), 0, true},
		{"inf y", 0, math.Inf(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoordinate(Vertex(0), tt.x, tt.y)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCoordinate(%v, %v) error = %v, wantErr %v", tt.x, tt.y, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeDegenerateGeometry) {
				t.Errorf("ValidateCoordinate() code = %v", GetCode(err))
			}
		})
	}
}

func TestValidateIntChoice(t *testing.T) {
	if err := ValidateIntChoice("Algorithm", 8, 1, 2, 5, 6, 7, 8); err != nil {
		t.Errorf("ValidateIntChoice(8) error = %v", err)
	}
	err := ValidateIntChoice("Algorithm", 4, 1, 2, 5, 6, 7, 8)
	if !Is(err, ErrCodeInvalidOptionValue) {
		t.Fatalf("ValidateIntChoice(4) = %v, want %v", err, ErrCodeInvalidOptionValue)
	}
	want := `OPTION_INVALID_VALUE [options] option "Algorithm": value 4: must be one of: 1, 2, 5, 6, 7, 8`
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		name    string
		v       float64
		lo, hi  float64
		wantErr bool
	}{
		{"inside", 3, 1, math.Inf(1), false},
		{"lower bound", 1, 1, 10, false},
		{"below", 0.5, 1, math.Inf(1), true},
		{"above", 11, 1, 10, true},
		{"nan", math.NaN(), 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRange("SmoothRatio", tt.v, tt.lo, tt.hi)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRange(%v) error = %v, wantErr %v", tt.v, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePositive(t *testing.T) {
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := ValidatePositive("MeshSizeFactor", v); err == nil {
			t.Errorf("ValidatePositive(%v) = nil, want error", v)
		}
	}
	if err := ValidatePositive("MeshSizeFactor", 0.5); err != nil {
		t.Errorf("ValidatePositive(0.5) error = %v", err)
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "t11.toml", false},
		{"valid nested", "meshes/square/out.msh", false},
		{"valid absolute", "/tmp/out.json", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 600)), true},
		{"path traversal", "../../../etc/passwd", true},
		{"null byte", "foo\x00bar", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidPath) {
				t.Errorf("ValidatePath(%q) returned wrong error code: %v", tt.input, err)
			}
		})
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"3f2a-b7_9", false},
		{"", true},
		{"a/b", true},
		{"é", true},
		{string(make([]byte, 65)), true},
	}
	for _, tt := range tests {
		if err := ValidateID(tt.input); (err != nil) != tt.wantErr {
			t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func TestErrorCodesAreUnique(t *testing.T) {
	codes := []Code{
		ErrCodeDegenerateGeometry,
		ErrCodeOpenLoop,
		ErrCodeSelfIntersection,
		ErrCodeUnknownEntity,
		ErrCodeModelFinalized,
		ErrCodeDomain,
		ErrCodeConflictingField,
		ErrCodeUnknownField,
		ErrCodeExpression,
		ErrCodeUnmeshable,
		ErrCodeMeshingFailed,
		ErrCodeVertexBudget,
		ErrCodeMatchingFailed,
		ErrCodeUnknownOption,
		ErrCodeInvalidOptionValue,
		ErrCodeInvalidInput,
		ErrCodeInvalidFormat,
		ErrCodeInvalidPath,
		ErrCodeNotFound,
		ErrCodeInternal,
	}

	seen := make(map[Code]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("Duplicate error code: %s", code)
		}
		seen[code] = true
	}
}
