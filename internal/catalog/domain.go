package catalog

import "time"

// Exercise is a library movement assignable to training plans.
type Exercise struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name" validate:"required,max=200"`
	MuscleGroup string    `json:"muscle_group" validate:"max=100"`
	Description string    `json:"description" validate:"max=2000"`
	VideoURL    string    `json:"video_url" validate:"omitempty,url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Food is a nutrition-library entry with macros per 100g.
type Food struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name" validate:"required,max=200"`
	Calories  float64   `json:"calories" validate:"gte=0"`
	Protein   float64   `json:"protein" validate:"gte=0"`
	Carbs     float64   `json:"carbs" validate:"gte=0"`
	Fat       float64   `json:"fat" validate:"gte=0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RefKind selects one of the simple reference tables.
type RefKind string

const (
	// KindSupplement is the supplements reference table.
	KindSupplement RefKind = "supplements"
	// KindMealType is the meal_types reference table.
	KindMealType RefKind = "meal_types"
	// KindCondition is the conditions reference table.
	KindCondition RefKind = "conditions"
	// KindPlanTemplate is the plan_templates reference table.
	KindPlanTemplate RefKind = "plan_templates"
)

// refTables whitelists kind-to-table mapping; kinds never reach SQL raw.
var refTables = map[RefKind]string{
	KindSupplement:   "supplements",
	KindMealType:     "meal_types",
	KindCondition:    "conditions",
	KindPlanTemplate: "plan_templates",
}

// RefItem is a row in one of the simple reference tables.
type RefItem struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
