package intent

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-hub/internal/textnorm"
)

// TypeRule maps a requested device type to the entities that satisfy it.
type TypeRule struct {
	// Domains the entity must belong to.
	Domains []string `yaml:"domains"`

	// DeviceClasses, when set, further require one of these device types.
	DeviceClasses []string `yaml:"device_classes,omitempty"`

	// Aliases are other words for the type.
	Aliases []string `yaml:"aliases,omitempty"`
}

// Vocabulary is the word list the matcher resolves against.
type Vocabulary struct {
	Types  map[string]TypeRule `yaml:"types"`
	Rooms  map[string][]string `yaml:"rooms"`
	Floors map[string][]string `yaml:"floors"`
}

// DefaultVocabulary returns the built-in English, Chinese and pinyin
// vocabulary.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Types: map[string]TypeRule{
			"light":   {Domains: []string{"light"}, Aliases: []string{"lights", "lamp", "lamps", "lighting", "deng", "灯", "灯光", "灯具", "照明"}},
			"switch":  {Domains: []string{"switch"}, Aliases: []string{"switches", "kaiguan", "开关", "socket", "sockets", "chazuo", "插座", "outlet", "plug"}},
			"climate": {Domains: []string{"climate"}, Aliases: []string{"ac", "aircon", "air conditioner", "thermostat", "kongtiao", "空调", "冷气"}},
			"fan":     {Domains: []string{"fan"}, Aliases: []string{"fans", "fengshan", "风扇"}},
			"cover":   {Domains: []string{"cover"}, Aliases: []string{"covers", "curtain", "curtains", "blind", "blinds", "shutter", "chuanglian", "窗帘"}},
			"lock":    {Domains: []string{"lock"}, Aliases: []string{"locks", "door lock", "suo", "锁", "门锁"}},
			"camera":  {Domains: []string{"camera"}, Aliases: []string{"cameras", "cam", "shexiangtou", "摄像头", "监控"}},
			"media_player": {Domains: []string{"media_player"}, Aliases: []string{
				"media player", "tv", "television", "speaker", "dianshi", "电视", "音箱",
			}},
			"sensor": {Domains: []string{"sensor", "binary_sensor"}, Aliases: []string{"sensors", "chuanganqi", "传感器"}},
			"temperature": {Domains: []string{"sensor"}, DeviceClasses: []string{"temperature"}, Aliases: []string{
				"temp", "temperature sensor", "wendu", "温度", "温度传感器",
			}},
			"humidity": {Domains: []string{"sensor"}, DeviceClasses: []string{"humidity"}, Aliases: []string{
				"humidity sensor", "shidu", "湿度", "湿度传感器",
			}},
			"binary_sensor": {Domains: []string{"binary_sensor"}, Aliases: []string{"presence", "存在", "在家"}},
			"occupancy": {Domains: []string{"binary_sensor"}, DeviceClasses: []string{"occupancy"}, Aliases: []string{
				"occupied", "占用", "占用传感器",
			}},
			"motion": {Domains: []string{"binary_sensor"}, DeviceClasses: []string{"motion"}, Aliases: []string{
				"motion sensor", "renti", "人体", "运动", "运动传感器", "人体传感器",
			}},
		},
		Rooms: map[string][]string{
			"living_room":    {"客厅", "keting", "living", "lounge", "sitting room"},
			"bedroom":        {"卧室", "woshi", "bed room"},
			"master_bedroom": {"主卧", "zhuwo", "master", "master bedroom"},
			"kitchen":        {"厨房", "chufang"},
			"bathroom":       {"浴室", "卫生间", "yushi", "weishengjian", "washroom", "toilet"},
			"study":          {"书房", "shufang", "office"},
			"dining_room":    {"餐厅", "canting", "dining"},
			"garage":         {"车库", "cheku"},
			"garden":         {"花园", "后院", "huayuan", "houyuan", "backyard", "yard"},
			"balcony":        {"阳台", "yangtai"},
			"entertainment":  {"娱乐室", "影音室", "yuleshi", "tv room", "media room"},
		},
		Floors: map[string][]string{
			"1": {"一楼", "1楼", "yilou", "first", "first floor", "ground", "ground floor"},
			"2": {"二楼", "2楼", "erlou", "second", "second floor"},
			"3": {"三楼", "3楼", "sanlou", "third", "third floor"},
		},
	}
}

// LoadVocabulary reads a vocabulary from a YAML file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary: %w", err)
	}
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Validate checks that every type names at least one domain.
func (v *Vocabulary) Validate() error {
	if len(v.Types) == 0 {
		return fmt.Errorf("%w: no types", ErrInvalidVocabulary)
	}
	var errs []string
	for _, name := range sortedKeys(v.Types) {
		if len(v.Types[name].Domains) == 0 {
			errs = append(errs, fmt.Sprintf("type %q has no domains", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidVocabulary, strings.Join(errs, "; "))
	}
	return nil
}

// compiled is a Vocabulary indexed by squashed normal form.
type compiled struct {
	types  map[string]*typeRule
	rooms  *aliasIndex
	floors *aliasIndex
}

type typeRule struct {
	name    string
	domains map[string]struct{}
	classes map[string]struct{}
}

// aliasIndex maps every spelling of a canonical name to all spellings of
// that name.
type aliasIndex struct {
	groups  [][]string
	byAlias map[string]int
	keys    []string
}

func compile(v *Vocabulary) (*compiled, error) {
	if v == nil {
		return nil, errors.New("intent: nil vocabulary")
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	c := &compiled{types: make(map[string]*typeRule)}
	for _, name := range sortedKeys(v.Types) {
		rule := v.Types[name]
		tr := &typeRule{
			name:    name,
			domains: set(rule.Domains),
			classes: set(rule.DeviceClasses),
		}
		for _, word := range append([]string{name}, rule.Aliases...) {
			key := squash(word)
			if key == "" {
				continue
			}
			if _, taken := c.types[key]; !taken {
				c.types[key] = tr
			}
		}
	}
	c.rooms = newAliasIndex(v.Rooms)
	c.floors = newAliasIndex(v.Floors)
	return c, nil
}

func newAliasIndex(groups map[string][]string) *aliasIndex {
	idx := &aliasIndex{byAlias: make(map[string]int)}
	for _, canonical := range sortedKeys(groups) {
		var spellings []string
		for _, word := range append([]string{canonical}, groups[canonical]...) {
			if key := squash(word); key != "" {
				spellings = append(spellings, key)
			}
		}
		if len(spellings) == 0 {
			continue
		}
		i := len(idx.groups)
		idx.groups = append(idx.groups, spellings)
		idx.keys = append(idx.keys, squash(canonical))
		for _, s := range spellings {
			if _, taken := idx.byAlias[s]; !taken {
				idx.byAlias[s] = i
			}
		}
	}
	return idx
}

// spellings returns every known spelling of the name q refers to, q
// itself first.
func (a *aliasIndex) spellings(q string) []string {
	i, ok := a.byAlias[q]
	if !ok {
		return []string{q}
	}
	out := make([]string, 0, len(a.groups[i])+1)
	out = append(out, q)
	for _, s := range a.groups[i] {
		if s != q {
			out = append(out, s)
		}
	}
	return out
}

// mentionedIn returns the spellings of the first room group with a
// spelling contained in text, or nil.
func (a *aliasIndex) mentionedIn(text string) []string {
	for _, group := range a.groups {
		for _, s := range group {
			if strings.Contains(text, s) {
				return group
			}
		}
	}
	return nil
}

// canonical returns the canonical key for q, or "" when q is unknown.
func (a *aliasIndex) canonical(q string) string {
	if i, ok := a.byAlias[q]; ok {
		return a.keys[i]
	}
	return ""
}

func (c *compiled) lookupType(deviceType string) *typeRule {
	return c.types[squash(deviceType)]
}

func squash(s string) string {
	return textnorm.Squash(textnorm.Normalize(s))
}

func set(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
