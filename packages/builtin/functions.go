package builtin

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownFunction is returned by Call for a name nothing registered.
var ErrUnknownFunction = errors.New("unknown function")

type Func func(args []string) (any, error)

type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["now"] = funcNow
	r.funcs["timestamp"] = funcTimestamp
	r.funcs["timestamp_ms"] = funcTimestampMs
	r.funcs["date"] = funcDate
	r.funcs["uuid"] = funcUUID
	r.funcs["random_int"] = funcRandomInt
	r.funcs["random_string"] = funcRandomString
	r.funcs["random_email"] = funcRandomEmail
	r.funcs["base64"] = funcBase64
	r.funcs["base64_decode"] = funcBase64Decode
	r.funcs["md5"] = funcMD5
	r.funcs["sha256"] = funcSHA256
	r.funcs["url_encode"] = funcURLEncode
	r.funcs["url_decode"] = funcURLDecode
	r.funcs["env"] = funcEnv
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// RegisterValue exposes a fixed value as a zero-argument function, which is
// how environment settings such as host() reach the data files.
func (r *Registry) RegisterValue(name string, value any) {
	r.Register(name, func(_ []string) (any, error) { return value, nil })
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Call evaluates an expression of the form name(arg, 'arg two').
func (r *Registry) Call(expr string) (any, error) {
	matches := funcCallPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if matches == nil {
		return nil, fmt.Errorf("malformed function call %q", expr)
	}

	name := matches[1]
	argsStr := matches[2]

	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	var args []string
	if strings.TrimSpace(argsStr) != "" {
		args = parseArgs(argsStr)
	}

	return fn(args)
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case !inQuote && (ch == '"' || ch == '\''):
			inQuote = true
			quoteChar = ch
		case inQuote && ch == quoteChar:
			inQuote = false
			quoteChar = 0
		case !inQuote && ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

func intArg(args []string, i int, name string, def int) (int, error) {
	if len(args) <= i {
		return def, nil
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%s: argument %d %q is not an integer", name, i+1, args[i])
	}
	return v, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func funcNow(_ []string) (any, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

func funcTimestamp(_ []string) (any, error) {
	return time.Now().Unix(), nil
}

func funcTimestampMs(_ []string) (any, error) {
	return time.Now().UnixMilli(), nil
}

// date accepts a Go layout and an optional day offset: date('2006-01-02', -1).
func funcDate(args []string) (any, error) {
	layout := "2006-01-02"
	if len(args) >= 1 && args[0] != "" {
		layout = args[0]
	}
	offset, err := intArg(args, 1, "date", 0)
	if err != nil {
		return nil, err
	}
	return time.Now().UTC().AddDate(0, 0, offset).Format(layout), nil
}

func funcUUID(_ []string) (any, error) {
	return uuid.NewString(), nil
}

func funcRandomInt(args []string) (any, error) {
	lo, err := intArg(args, 0, "random_int", 0)
	if err != nil {
		return nil, err
	}
	hi, err := intArg(args, 1, "random_int", 100)
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("random_int: max %d is below min %d", hi, lo)
	}
	return rand.Intn(hi-lo+1) + lo, nil
}

func funcRandomString(args []string) (any, error) {
	length, err := intArg(args, 0, "random_string", 16)
	if err != nil {
		return nil, err
	}
	return randomString(length, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"), nil
}

func funcRandomEmail(_ []string) (any, error) {
	user := randomString(8, "abcdefghijklmnopqrstuvwxyz")
	domain := randomString(6, "abcdefghijklmnopqrstuvwxyz")
	return fmt.Sprintf("%s@%s.com", user, domain), nil
}

func funcBase64(args []string) (any, error) {
	return base64.StdEncoding.EncodeToString([]byte(firstArg(args))), nil
}

func funcBase64Decode(args []string) (any, error) {
	decoded, err := base64.StdEncoding.DecodeString(firstArg(args))
	if err != nil {
		return nil, fmt.Errorf("base64_decode: %w", err)
	}
	return string(decoded), nil
}

func funcMD5(args []string) (any, error) {
	hash := md5.Sum([]byte(firstArg(args)))
	return hex.EncodeToString(hash[:]), nil
}

func funcSHA256(args []string) (any, error) {
	hash := sha256.Sum256([]byte(firstArg(args)))
	return hex.EncodeToString(hash[:]), nil
}

func funcURLEncode(args []string) (any, error) {
	return url.QueryEscape(firstArg(args)), nil
}

func funcURLDecode(args []string) (any, error) {
	decoded, err := url.QueryUnescape(firstArg(args))
	if err != nil {
		return nil, fmt.Errorf("url_decode: %w", err)
	}
	return decoded, nil
}

func funcEnv(args []string) (any, error) {
	name := firstArg(args)
	val, ok := os.LookupEnv(name)
	if !ok {
		if len(args) >= 2 {
			return args[1], nil
		}
		return nil, fmt.Errorf("env: %s is not set", name)
	}
	return val, nil
}

func randomString(length int, charset string) string {
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}
