package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/vorpalengineering/x402-skills/utils"
)

type Category string

const (
	CategoryAnalytics Category = "analytics"
	CategoryContent   Category = "content"
	CategorySocial    Category = "social"
)

type CategoryMeta struct {
	ID          Category `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
}

var categories = []CategoryMeta{
	{ID: CategoryAnalytics, Label: "Analytics", Description: "Blockchain data & on-chain metrics"},
	{ID: CategoryContent, Label: "Content", Description: "AI-powered writing & rewriting"},
	{ID: CategorySocial, Label: "Social", Description: "Social media insights & trends"},
}

func Categories() []CategoryMeta {
	out := make([]CategoryMeta, len(categories))
	copy(out, categories)
	return out
}

const EndpointPrefix = "/api/skills/"

type Skill struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	LongDescription string   `json:"longDescription"`
	Category        Category `json:"category"`

	// Pricing is canonical in microSTX
	PriceMicroSTX int64  `json:"priceMicroSTX"`
	PriceSTX      string `json:"priceSTX"`

	Endpoint      string          `json:"endpoint"`
	Method        string          `json:"method"`
	ExampleInput  json.RawMessage `json:"exampleInput"`
	ExampleOutput json.RawMessage `json:"exampleOutput"`

	Icon       string `json:"icon"`
	Color      string `json:"color"`
	Gradient   string `json:"gradient"`
	DataSource string `json:"dataSource"`

	TotalExecutions   int64   `json:"totalExecutions"`
	SuccessRate       float64 `json:"successRate"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`

	newInput func() Input
}

// NewInput returns the skill's input struct pre-filled with defaults.
func (s *Skill) NewInput() Input {
	if s.newInput == nil {
		return &GenericInput{}
	}
	return s.newInput()
}

// PriceString is the price in microSTX as carried on the wire.
func (s *Skill) PriceString() string {
	return fmt.Sprintf("%d", s.PriceMicroSTX)
}

// Catalog is a read-only skill registry. It is safe for concurrent use.
type Catalog struct {
	skills map[string]*Skill
	order  []string
}

// New builds a catalog, filling derived fields (endpoint, method, STX price).
func New(skills ...Skill) (*Catalog, error) {
	c := &Catalog{skills: make(map[string]*Skill, len(skills))}
	for i := range skills {
		s := skills[i]
		if s.ID == "" {
			return nil, fmt.Errorf("skill %d has no id", i)
		}
		if _, exists := c.skills[s.ID]; exists {
			return nil, fmt.Errorf("duplicate skill id: %s", s.ID)
		}
		if s.PriceMicroSTX < 0 {
			return nil, fmt.Errorf("skill %s has negative price", s.ID)
		}

		if s.Method == "" {
			s.Method = http.MethodGet
		}
		s.Method = strings.ToUpper(s.Method)
		if s.Method != http.MethodGet && s.Method != http.MethodPost {
			return nil, fmt.Errorf("skill %s has unsupported method %s", s.ID, s.Method)
		}
		if s.Endpoint == "" {
			s.Endpoint = EndpointPrefix + s.ID
		}
		s.PriceSTX = utils.MicroSTXToSTX(s.PriceMicroSTX).String()
		if s.SuccessRate == 0 && s.TotalExecutions == 0 {
			s.SuccessRate = 100
		}

		c.skills[s.ID] = &s
		c.order = append(c.order, s.ID)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (*Skill, bool) {
	s, ok := c.skills[id]
	return s, ok
}

// ByResource looks up a skill by its endpoint path.
func (c *Catalog) ByResource(resource string) (*Skill, bool) {
	for _, id := range c.order {
		if c.skills[id].Endpoint == resource {
			return c.skills[id], true
		}
	}
	return nil, false
}

func (c *Catalog) All() []*Skill {
	out := make([]*Skill, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.skills[id])
	}
	return out
}

func (c *Catalog) ByCategory(category Category) []*Skill {
	var out []*Skill
	for _, id := range c.order {
		if c.skills[id].Category == category {
			out = append(out, c.skills[id])
		}
	}
	return out
}

func (c *Catalog) Len() int {
	return len(c.order)
}
