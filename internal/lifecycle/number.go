package lifecycle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/admission-allocation/internal/model"
)

// NumberFormat renders admission numbers of the form
// INST/2026/UG/CSE/KCET/0001.  The sequence is issued per program and quota
// by the store, so the rendered number is unique as long as program codes
// are unique within an institution.
type NumberFormat struct {
	InstitutionCode string // fallback when the program carries none
	Width           int    // zero-padding of the sequence, default 4
}

// SequenceScope is the key under which the store keeps the running
// sequence for a program and quota.
func SequenceScope(programID uint64, quota model.QuotaType) string {
	return "admission:" + strconv.FormatUint(programID, 10) + ":" + string(quota)
}

// Render builds the admission number for the seq-th confirmation of quota
// in program p.
func (f NumberFormat) Render(p *model.Program, quota model.QuotaType, seq int64) (string, error) {
	if p == nil {
		return "", fmt.Errorf("program is required")
	}
	if seq <= 0 {
		return "", fmt.Errorf("sequence must be positive, got %d", seq)
	}
	inst := p.InstitutionCode
	if inst == "" {
		inst = f.InstitutionCode
	}
	width := f.Width
	if width <= 0 {
		width = 4
	}
	parts := []string{
		segment(inst, "INST"),
		segment(p.AcademicYear, "0000"),
		segment(p.CourseType, "NA"),
		segment(p.Code, strconv.FormatUint(p.ID, 10)),
		segment(string(quota), "NA"),
		fmt.Sprintf("%0*d", width, seq),
	}
	return strings.Join(parts, "/"), nil
}

// segment upper-cases s and strips separators so a field can never inject
// an extra path component.
func segment(s, def string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("/", "-", " ", "").Replace(s)
	if s == "" {
		return def
	}
	return s
}
