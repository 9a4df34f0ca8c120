package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/ink-verifier/pkg/contract"
	"github.com/Layr-Labs/ink-verifier/pkg/identity"
	"github.com/Layr-Labs/ink-verifier/pkg/ss58"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for verifier configuration
const (
	EnvVerifierConfig          = "VERIFIER_CONFIG"
	EnvVerifierEndpoint        = "VERIFIER_ENDPOINT"
	EnvVerifierPhrase          = "VERIFIER_PHRASE"
	EnvVerifierAlgorithm       = "VERIFIER_ALGORITHM"
	EnvVerifierContractAddress = "VERIFIER_CONTRACT_ADDRESS"
	EnvVerifierMetadata        = "VERIFIER_CONTRACT_METADATA"
	EnvVerifierVerbose         = "VERIFIER_VERBOSE"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultLabel          = "verifier"
	DefaultTestMessage    = "0xa00f94828aebefb421b1180ffe372e0fd5fbdc90bc7348c1ad4a0819910f1dfe"
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

func SupportedPersistenceTypes() []string {
	return []string{PersistenceTypeMemory.String(), PersistenceTypeBadger.String(), PersistenceTypeRedis.String()}
}

// Secret holds sensitive text. It never renders its value when printed or
// marshaled.
type Secret string

const redacted = "[redacted]"

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return s.String()
}

func (s Secret) Reveal() string {
	return string(s)
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

func (s Secret) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Gas is a step's gas ceiling: a non-negative integer (or integer string) for a
// fixed limit, "unbounded" or any negative number for no limit.
type Gas struct {
	contract.GasLimit
}

func (g *Gas) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: gas must be a number or \"unbounded\"", node.Line)
	}
	limit, err := ParseGas(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	g.GasLimit = limit
	return nil
}

func (g Gas) MarshalYAML() (any, error) {
	if limit, ok := g.Limit(); ok {
		return limit, nil
	}
	return "unbounded", nil
}

func ParseGas(s string) (contract.GasLimit, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	switch strings.ToLower(s) {
	case "unbounded", "unlimited":
		return contract.UnboundedGas(), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return contract.GasFromInt(n), nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return contract.FixedGas(n), nil
	}
	return contract.GasLimit{}, fmt.Errorf("invalid gas %q: want an integer or \"unbounded\"", s)
}

type Step struct {
	Name       string   `yaml:"name"`
	Method     string   `yaml:"method"`
	Args       []any    `yaml:"args"`
	Pagination []uint64 `yaml:"pagination"`
	Gas        *Gas     `yaml:"gas"`
	DelayMs    int64    `yaml:"delay_ms"`
}

// Window returns the pagination window, or nil for a plain call.
func (s *Step) Window() *contract.Window {
	if len(s.Pagination) != 2 {
		return nil
	}
	return &contract.Window{Offset: s.Pagination[0], Limit: s.Pagination[1]}
}

func (s *Step) Delay() time.Duration {
	return time.Duration(s.DelayMs) * time.Millisecond
}

// DisplayName is the step name, falling back to its method.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Method
}

type ContractConfig struct {
	Metadata string `yaml:"metadata"`
	Address  string `yaml:"address"`
}

type IdentityConfig struct {
	Phrase    Secret `yaml:"phrase"`
	Algorithm string `yaml:"algorithm"`
	Label     string `yaml:"label"`
	// Address, when set, is the account the self-check signature must verify
	// against. It catches a phrase configured with the wrong algorithm.
	Address    string  `yaml:"address"`
	SS58Prefix *uint16 `yaml:"ss58_prefix"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  Secret `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type PersistenceConfig struct {
	Type     PersistenceType `yaml:"type"`
	DataPath string          `yaml:"data_path"`
	Redis    RedisConfig     `yaml:"redis"`
}

// VerifierConfig is the complete configuration for a verification run
type VerifierConfig struct {
	Endpoint          string            `yaml:"endpoint"`
	ConnectTimeout    time.Duration     `yaml:"connect_timeout"`
	CallTimeout       time.Duration     `yaml:"call_timeout"`
	CallMethod        string            `yaml:"call_method"`
	Contract          ContractConfig    `yaml:"contract"`
	Identity          IdentityConfig    `yaml:"identity"`
	TestMessage       string            `yaml:"test_message"`
	MaxCallsPerSecond float64           `yaml:"max_calls_per_second"`
	Persistence       PersistenceConfig `yaml:"persistence"`
	Steps             []Step            `yaml:"steps"`
	Verbose           bool              `yaml:"verbose"`
}

// Load reads a YAML config file, rejects unknown keys and fills defaults. It
// does not validate; callers apply overrides first.
func Load(path string) (*VerifierConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	cfg := &VerifierConfig{}
	if err := DecodeStrict(f, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func (c *VerifierConfig) ApplyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CallMethod == "" {
		c.CallMethod = contract.DefaultCallMethod
	}
	if c.Identity.Algorithm == "" {
		c.Identity.Algorithm = identity.AlgorithmEd25519.String()
	}
	if c.Identity.Label == "" {
		c.Identity.Label = DefaultLabel
	}
	if c.TestMessage == "" {
		c.TestMessage = DefaultTestMessage
	}
	if c.Persistence.Type == "" {
		c.Persistence.Type = PersistenceTypeMemory
	}
}

// Message decodes the hex self-check message.
func (c *VerifierConfig) Message() ([]byte, error) {
	return hexutil.Decode(c.TestMessage)
}

func (c *VerifierConfig) Algorithm() (identity.Algorithm, error) {
	return identity.ParseAlgorithm(c.Identity.Algorithm)
}

// Validate validates the verifier configuration
func (c *VerifierConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Endpoint == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("endpoint"), "endpoint is required"))
	} else if u, err := url.Parse(c.Endpoint); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		allErrors = append(allErrors, field.Invalid(field.NewPath("endpoint"), c.Endpoint, "must be a ws:// or wss:// url"))
	}
	if c.ConnectTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("connect_timeout"), c.ConnectTimeout.String(), "must not be negative"))
	}
	if c.CallTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("call_timeout"), c.CallTimeout.String(), "must not be negative"))
	}
	if c.MaxCallsPerSecond < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("max_calls_per_second"), c.MaxCallsPerSecond, "must not be negative"))
	}

	contractPath := field.NewPath("contract")
	if c.Contract.Metadata == "" {
		allErrors = append(allErrors, field.Required(contractPath.Child("metadata"), "contract metadata file is required"))
	}
	if c.Contract.Address == "" {
		allErrors = append(allErrors, field.Required(contractPath.Child("address"), "contract address is required"))
	} else if _, _, err := ss58.Decode(c.Contract.Address); err != nil {
		allErrors = append(allErrors, field.Invalid(contractPath.Child("address"), c.Contract.Address, err.Error()))
	}

	identityPath := field.NewPath("identity")
	if c.Identity.Phrase == "" {
		allErrors = append(allErrors, field.Required(identityPath.Child("phrase"), "recovery phrase is required"))
	}
	if _, err := c.Algorithm(); err != nil {
		supported := make([]string, 0, len(identity.SupportedAlgorithms()))
		for _, a := range identity.SupportedAlgorithms() {
			supported = append(supported, a.String())
		}
		allErrors = append(allErrors, field.NotSupported(identityPath.Child("algorithm"), c.Identity.Algorithm, supported))
	}
	if c.Identity.Address != "" {
		if _, _, err := ss58.Decode(c.Identity.Address); err != nil {
			allErrors = append(allErrors, field.Invalid(identityPath.Child("address"), c.Identity.Address, err.Error()))
		}
	}
	if c.Identity.SS58Prefix != nil && *c.Identity.SS58Prefix > 16383 {
		allErrors = append(allErrors, field.Invalid(identityPath.Child("ss58_prefix"), *c.Identity.SS58Prefix, "must be at most 16383"))
	}

	if _, err := c.Message(); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("test_message"), c.TestMessage, "must be 0x-prefixed hex"))
	}

	allErrors = append(allErrors, c.validatePersistence()...)
	allErrors = append(allErrors, c.validateSteps()...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (c *VerifierConfig) validatePersistence() field.ErrorList {
	var errs field.ErrorList
	path := field.NewPath("persistence")

	switch c.Persistence.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if c.Persistence.DataPath == "" {
			errs = append(errs, field.Required(path.Child("data_path"), "data_path is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if c.Persistence.Redis.Address == "" {
			errs = append(errs, field.Required(path.Child("redis", "address"), "address is required for redis persistence"))
		}
		if c.Persistence.Redis.DB < 0 || c.Persistence.Redis.DB > 15 {
			errs = append(errs, field.Invalid(path.Child("redis", "db"), c.Persistence.Redis.DB, "must be between 0 and 15"))
		}
	default:
		errs = append(errs, field.NotSupported(path.Child("type"), c.Persistence.Type.String(), SupportedPersistenceTypes()))
	}
	return errs
}

func (c *VerifierConfig) validateSteps() field.ErrorList {
	var errs field.ErrorList
	path := field.NewPath("steps")

	if len(c.Steps) == 0 {
		return append(errs, field.Required(path, "at least one step is required"))
	}
	for i, s := range c.Steps {
		stepPath := path.Index(i)
		if s.Method == "" {
			errs = append(errs, field.Required(stepPath.Child("method"), "method is required"))
		}
		if s.Gas == nil {
			errs = append(errs, field.Required(stepPath.Child("gas"), "gas is required: an integer ceiling, or \"unbounded\" / a negative number"))
		}
		if len(s.Pagination) != 0 && len(s.Pagination) != 2 {
			errs = append(errs, field.Invalid(stepPath.Child("pagination"), s.Pagination, "must be [offset, limit]"))
		}
		if len(s.Pagination) == 2 && s.Pagination[1] == 0 {
			errs = append(errs, field.Invalid(stepPath.Child("pagination").Index(1), s.Pagination[1], "limit must be positive"))
		}
		if s.DelayMs < 0 {
			errs = append(errs, field.Invalid(stepPath.Child("delay_ms"), s.DelayMs, "must not be negative"))
		}
	}
	return errs
}
