package linking

import "testing"

func TestValidateInstitutionID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"catalog id", "fcinst_Qn1a7A4KhL42se", false},
		{"manual id", "fcinst_custom", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"wrong prefix", "bcinst_Jg18xEfPHevfHP", true},
		{"bare name", "chase", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstitutionID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInstitutionID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestInstitutionsFor(t *testing.T) {
	testCatalog := InstitutionsFor(true)
	if len(testCatalog) == 0 {
		t.Fatal("test-mode catalog is empty")
	}
	for _, inst := range testCatalog {
		if err := ValidateInstitutionID(inst.ID); err != nil {
			t.Errorf("catalog entry %q fails validation: %v", inst.Name, err)
		}
	}

	if got := InstitutionsFor(false); len(got) != 0 {
		t.Errorf("live-mode catalog has %d entries, want 0", len(got))
	}
}
