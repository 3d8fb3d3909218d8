package kinetics

import (
	"embed"
	"fmt"
	"math"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed mechanisms/*.yaml
var builtinFS embed.FS

type Species struct {
	Name      string  `yaml:"name"`
	MolarMass float64 `yaml:"molar_mass"` // g/mol
}

// Reaction is an irreversible step with rate k = A * T^b * exp(-Ea / (R T)).
// Orders defaults to the reactant stoichiometry when empty.
type Reaction struct {
	Equation string             `yaml:"equation"`
	A        float64            `yaml:"A"`
	B        float64            `yaml:"b"`
	Ea       float64            `yaml:"Ea"`
	DeltaH   float64            `yaml:"dH"`
	Orders   map[string]float64 `yaml:"orders,omitempty"`

	reactants map[string]float64
	products  map[string]float64
	orders    []term
	stoich    []term
}

type term struct {
	species int
	coeff   float64
}

type Mechanism struct {
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description,omitempty"`
	Units        string     `yaml:"units,omitempty"`
	HeatCapacity float64    `yaml:"cp"` // mixture molar cp, J/(mol K)
	Species      []Species  `yaml:"species"`
	Reactions    []Reaction `yaml:"reactions"`

	index map[string]int
}

// ParseMechanism decodes and validates a YAML mechanism.
func ParseMechanism(data []byte) (*Mechanism, error) {
	var m Mechanism
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMechanism, err)
	}
	if err := m.compile(); err != nil {
		return nil, err
	}
	return &m, nil
}

func LoadMechanism(path string) (*Mechanism, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMechanism(data)
}

// Builtin returns a fresh copy of a mechanism shipped with the binary.
func Builtin(name string) (*Mechanism, error) {
	data, err := builtinFS.ReadFile(path.Join("mechanisms", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrUnknownMechanism, name, BuiltinNames())
	}
	return ParseMechanism(data)
}

func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir("mechanisms")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

func (m *Mechanism) compile() error {
	if len(m.Species) == 0 {
		return fmt.Errorf("%w: no species", ErrInvalidMechanism)
	}
	if len(m.Reactions) == 0 {
		return fmt.Errorf("%w: no reactions", ErrInvalidMechanism)
	}
	if !(m.HeatCapacity > 0) {
		return fmt.Errorf("%w: cp must be positive, got %g", ErrInvalidMechanism, m.HeatCapacity)
	}

	m.index = make(map[string]int, len(m.Species))
	for i, s := range m.Species {
		if s.Name == "" {
			return fmt.Errorf("%w: species %d has no name", ErrInvalidMechanism, i)
		}
		if _, dup := m.index[s.Name]; dup {
			return fmt.Errorf("%w: duplicate species %s", ErrInvalidMechanism, s.Name)
		}
		if !(s.MolarMass > 0) {
			return fmt.Errorf("%w: species %s needs a positive molar mass", ErrInvalidMechanism, s.Name)
		}
		m.index[s.Name] = i
	}

	for i := range m.Reactions {
		if err := m.compileReaction(&m.Reactions[i]); err != nil {
			return fmt.Errorf("reaction %d (%s): %w", i, m.Reactions[i].Equation, err)
		}
	}
	return nil
}

func (m *Mechanism) compileReaction(r *Reaction) error {
	reactants, products, err := ParseEquation(r.Equation)
	if err != nil {
		return err
	}
	if !(r.A > 0) || math.IsInf(r.A, 0) {
		return fmt.Errorf("%w: pre-exponential factor must be positive", ErrInvalidMechanism)
	}
	r.reactants, r.products = reactants, products

	net := make(map[string]float64)
	for name, nu := range reactants {
		net[name] -= nu
	}
	for name, nu := range products {
		net[name] += nu
	}
	r.stoich, err = m.terms(net)
	if err != nil {
		return err
	}

	orders := r.Orders
	if len(orders) == 0 {
		orders = reactants
	}
	r.orders, err = m.terms(orders)
	return err
}

// terms resolves species names to indices in a deterministic order.
func (m *Mechanism) terms(coeffs map[string]float64) ([]term, error) {
	out := make([]term, 0, len(coeffs))
	for name, c := range coeffs {
		idx, ok := m.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSpecies, name)
		}
		if c == 0 {
			continue
		}
		out = append(out, term{species: idx, coeff: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].species < out[j].species })
	return out, nil
}

func (m *Mechanism) SpeciesIndex(name string) (int, bool) {
	idx, ok := m.index[name]
	return idx, ok
}

func (m *Mechanism) SpeciesNames() []string {
	names := make([]string, len(m.Species))
	for i, s := range m.Species {
		names[i] = s.Name
	}
	return names
}

func (m *Mechanism) ReactionEquations() []string {
	eqs := make([]string, len(m.Reactions))
	for i, r := range m.Reactions {
		eqs[i] = r.Equation
	}
	return eqs
}

// ParseEquation splits "A + 2 B => C" into reactant and product
// stoichiometric coefficients. "=>", "->" and "=" separate the sides.
func ParseEquation(eq string) (map[string]float64, map[string]float64, error) {
	var lhs, rhs string
	var found bool
	for _, sep := range []string{"=>", "->", "="} {
		if lhs, rhs, found = strings.Cut(eq, sep); found {
			break
		}
	}
	if !found {
		return nil, nil, fmt.Errorf("%w: equation %q has no arrow", ErrInvalidMechanism, eq)
	}

	reactants, err := parseSide(lhs)
	if err != nil {
		return nil, nil, fmt.Errorf("equation %q: %w", eq, err)
	}
	products, err := parseSide(rhs)
	if err != nil {
		return nil, nil, fmt.Errorf("equation %q: %w", eq, err)
	}
	return reactants, products, nil
}

func parseSide(side string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, part := range strings.Split(side, "+") {
		fields := strings.Fields(part)
		switch len(fields) {
		case 1:
			out[fields[0]] += 1
		case 2:
			nu, err := strconv.ParseFloat(fields[0], 64)
			if err != nil || nu <= 0 {
				return nil, fmt.Errorf("%w: bad coefficient %q", ErrInvalidMechanism, fields[0])
			}
			out[fields[1]] += nu
		default:
			return nil, fmt.Errorf("%w: bad term %q", ErrInvalidMechanism, strings.TrimSpace(part))
		}
	}
	return out, nil
}
