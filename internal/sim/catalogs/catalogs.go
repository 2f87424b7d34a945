package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"aralia.dev/internal/sim/world/terrain/gen"
)

const BiomesFile = "biomes.yaml"

// ErrInvertedRange marks a feature range whose minimum exceeds its maximum.
var ErrInvertedRange = errors.New("range min exceeds max")

//go:embed biomes.schema.json
var biomesSchema string

//go:embed default_biomes.yaml
var defaultBiomes []byte

type Catalogs struct {
	Biomes   BiomeCatalog
	Starting StartingLocation
}

type BiomeCatalog struct {
	ByID map[string]Biome
	IDs  []string
	// Default is the feature set used for biome ids the catalog does not know.
	Default []gen.FeatureConfig
	Digest  string
}

type TerrainKind int

const (
	Standard TerrainKind = iota
	CellularAutomata
)

func (k TerrainKind) String() string {
	if k == CellularAutomata {
		return "cellular_automata"
	}
	return "standard"
}

type Biome struct {
	ID                 string
	Name               string
	PathChanceOverride *int
	Kind               TerrainKind
	Cave               gen.CaveParams
	Features           []gen.FeatureConfig
}

// StartingLocation is the world tile whose submap always carries a centered path.
type StartingLocation struct {
	ID      string `json:"id" yaml:"id"`
	BiomeID string `json:"biome_id" yaml:"biome_id"`
	X       int    `json:"x" yaml:"x"`
	Y       int    `json:"y" yaml:"y"`
}

func (s StartingLocation) Matches(biomeID string, parent gen.Point) bool {
	return s.ID != "" && s.BiomeID == biomeID && s.X == parent.X && s.Y == parent.Y
}

// Lookup returns the biome for id and whether the catalog knows it. Unknown
// ids get a standard biome carrying the default feature set.
func (c *BiomeCatalog) Lookup(id string) (Biome, bool) {
	if b, ok := c.ByID[id]; ok {
		return b, true
	}
	return Biome{ID: id, Kind: Standard, Features: c.Default}, false
}

// SeedText is the per-biome text mixed into every hash.
func (c *BiomeCatalog) SeedText(id string) string {
	b, ok := c.ByID[id]
	return gen.BiomeSeedText(b.ID, b.Name, ok)
}

type biomesDoc struct {
	StartingLocation *StartingLocation `yaml:"starting_location"`
	DefaultFeatures  []featureDoc      `yaml:"default_features"`
	Biomes           []biomeDoc        `yaml:"biomes"`
}

type biomeDoc struct {
	ID         string       `yaml:"id"`
	Name       string       `yaml:"name"`
	PathChance *int         `yaml:"path_chance"`
	Terrain    string       `yaml:"terrain"`
	Cave       *caveDoc     `yaml:"cave"`
	Features   []featureDoc `yaml:"features"`
}

type caveDoc struct {
	FillProbability float64 `yaml:"fill_probability"`
	Steps           int     `yaml:"steps"`
}

type featureDoc struct {
	ID               string  `yaml:"id"`
	NumSeeds         [2]int  `yaml:"num_seeds"`
	Size             [2]int  `yaml:"size"`
	Shape            string  `yaml:"shape"`
	ZOffset          float64 `yaml:"z_offset"`
	GeneratesTerrain string  `yaml:"generates_terrain"`
}

// Load reads biomes.yaml from configDir. A missing file falls back to the
// built-in table.
func Load(configDir string) (*Catalogs, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, BiomesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults()
		}
		return nil, err
	}
	return Parse(raw)
}

// Defaults returns the built-in biome table.
func Defaults() (*Catalogs, error) {
	return Parse(defaultBiomes)
}

func Parse(raw []byte) (*Catalogs, error) {
	if err := validateBiomes(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", BiomesFile, err)
	}
	var doc biomesDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", BiomesFile, err)
	}

	var c Catalogs
	c.Biomes.Digest = sha256Hex(raw)
	c.Biomes.ByID = make(map[string]Biome, len(doc.Biomes))

	defaults, err := featureConfigs(doc.DefaultFeatures)
	if err != nil {
		return nil, fmt.Errorf("%s: default_features: %w", BiomesFile, err)
	}
	c.Biomes.Default = defaults

	for _, bd := range doc.Biomes {
		if bd.ID == "" {
			return nil, fmt.Errorf("%s: empty biome id", BiomesFile)
		}
		if _, dup := c.Biomes.ByID[bd.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate biome %q", BiomesFile, bd.ID)
		}
		b, err := buildBiome(bd)
		if err != nil {
			return nil, fmt.Errorf("%s: biome %s: %w", BiomesFile, bd.ID, err)
		}
		c.Biomes.ByID[b.ID] = b
		c.Biomes.IDs = append(c.Biomes.IDs, b.ID)
	}
	sort.Strings(c.Biomes.IDs)

	if doc.StartingLocation != nil {
		c.Starting = *doc.StartingLocation
		if _, ok := c.Biomes.ByID[c.Starting.BiomeID]; !ok {
			return nil, fmt.Errorf("%s: starting_location: unknown biome %q", BiomesFile, c.Starting.BiomeID)
		}
	}
	return &c, nil
}

func buildBiome(bd biomeDoc) (Biome, error) {
	b := Biome{ID: bd.ID, Name: bd.Name, PathChanceOverride: bd.PathChance}

	kind := strings.ToLower(strings.TrimSpace(bd.Terrain))
	switch kind {
	case "standard":
		b.Kind = Standard
	case "cellular_automata":
		b.Kind = CellularAutomata
	case "":
		// cave and dungeon are automaton biomes unless told otherwise.
		if bd.ID == "cave" || bd.ID == "dungeon" {
			b.Kind = CellularAutomata
		}
	default:
		return b, fmt.Errorf("unknown terrain %q", bd.Terrain)
	}

	if b.Kind == CellularAutomata {
		b.Cave = gen.CaveDefaults
		if bd.ID == "dungeon" {
			b.Cave = gen.DungeonParams
		}
		if bd.Cave != nil {
			b.Cave = gen.CaveParams{FillProbability: bd.Cave.FillProbability, Steps: bd.Cave.Steps}
		}
	}

	features, err := featureConfigs(bd.Features)
	if err != nil {
		return b, err
	}
	b.Features = features
	return b, nil
}

func featureConfigs(docs []featureDoc) ([]gen.FeatureConfig, error) {
	out := make([]gen.FeatureConfig, 0, len(docs))
	for _, fd := range docs {
		if fd.ID == "" {
			return nil, fmt.Errorf("feature with empty id")
		}
		shape, err := gen.ParseShape(fd.Shape)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", fd.ID, err)
		}
		if fd.NumSeeds[0] > fd.NumSeeds[1] {
			return nil, fmt.Errorf("feature %s: num_seeds %v: %w", fd.ID, fd.NumSeeds, ErrInvertedRange)
		}
		if fd.Size[0] > fd.Size[1] {
			return nil, fmt.Errorf("feature %s: size %v: %w", fd.ID, fd.Size, ErrInvertedRange)
		}
		out = append(out, gen.FeatureConfig{
			ID:               fd.ID,
			NumSeeds:         fd.NumSeeds,
			Size:             fd.Size,
			Shape:            shape,
			ZOffset:          fd.ZOffset,
			GeneratesTerrain: fd.GeneratesTerrain,
		})
	}
	return out, nil
}

// validateBiomes checks the raw YAML against the embedded JSON schema. The
// document is round-tripped through JSON so the validator only sees JSON
// value types.
func validateBiomes(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}

	sch, err := jsonschema.CompileString("https://aralia.dev/schemas/biomes.schema.json", biomesSchema)
	if err != nil {
		return err
	}
	return sch.Validate(v)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Summary is the public view of the catalog served over HTTP.
type Summary struct {
	Digest   string           `json:"digest"`
	Biomes   []string         `json:"biomes"`
	Starting StartingLocation `json:"starting_location"`
}

func (c *Catalogs) Summary() Summary {
	ids := append([]string(nil), c.Biomes.IDs...)
	return Summary{Digest: c.Biomes.Digest, Biomes: ids, Starting: c.Starting}
}
