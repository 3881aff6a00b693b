package domain

// Violation records one instance where a rule's condition fails on
// specific cells.
type Violation struct {
	ID     int64
	RuleID string
	Cells  []Cell
}

// NewViolation creates a Violation for the given rule over the given cells.
func NewViolation(ruleID string, cells ...Cell) *Violation {
	return &Violation{RuleID: ruleID, Cells: cells}
}

// Add appends a cell to the violation.
func (v *Violation) Add(c Cell) {
	v.Cells = append(v.Cells, c)
}

// Fix is one proposed repair: assign NewValue to the targeted cell.
type Fix struct {
	ViolationID int64
	Cell        Cell
	NewValue    interface{}
}
