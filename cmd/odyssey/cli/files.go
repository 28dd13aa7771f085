package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-console/internal/calendar"
	"github.com/odyssey-erp/odyssey-console/internal/roles"
)

type rolesFile struct {
	Permissions []permissionEntry `yaml:"permissions"`
	Roles       []roleEntry       `yaml:"roles"`
}

type permissionEntry struct {
	ID        string `yaml:"id"`
	Module    string `yaml:"module"`
	Resource  string `yaml:"resource"`
	Action    string `yaml:"action"`
	RiskLevel string `yaml:"risk_level"`
}

type roleEntry struct {
	ID                 int64    `yaml:"id"`
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description"`
	Level              int      `yaml:"level"`
	Parent             *int64   `yaml:"parent"`
	Permissions        []string `yaml:"permissions"`
	InheritanceEnabled *bool    `yaml:"inheritance_enabled"`
	System             bool     `yaml:"system"`
	Users              int      `yaml:"users"`
}

type officesFile struct {
	Offices []officeEntry `yaml:"offices"`
}

type officeEntry struct {
	ID              string                       `yaml:"id"`
	Name            string                       `yaml:"name"`
	Timezone        string                       `yaml:"timezone"`
	BusinessHours   map[string]calendar.DayHours `yaml:"business_hours"`
	Holidays        []holidayEntry               `yaml:"holidays"`
	EscalationRules calendar.EscalationRules     `yaml:"escalation_rules"`
}

type holidayEntry struct {
	Date        string `yaml:"date"`
	Name        string `yaml:"name"`
	IsRecurring bool   `yaml:"is_recurring"`
}

// LoadRoles reads roles and the permission catalog from a YAML file.
// inheritance_enabled defaults to true.
func LoadRoles(path string) ([]roles.Role, []roles.Permission, error) {
	var file rolesFile
	if err := readYAML(path, &file); err != nil {
		return nil, nil, err
	}
	if len(file.Roles) == 0 {
		return nil, nil, fmt.Errorf("%s: no roles defined", path)
	}
	list := make([]roles.Role, 0, len(file.Roles))
	for _, entry := range file.Roles {
		inherit := true
		if entry.InheritanceEnabled != nil {
			inherit = *entry.InheritanceEnabled
		}
		list = append(list, roles.Role{
			ID:                 entry.ID,
			Name:               entry.Name,
			Description:        entry.Description,
			Level:              entry.Level,
			ParentRoleID:       entry.Parent,
			Permissions:        roles.NormalizePermissions(entry.Permissions),
			InheritanceEnabled: inherit,
			IsSystem:           entry.System,
			UserCount:          entry.Users,
		})
	}
	catalog, err := toCatalog(file.Permissions)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, catalog, nil
}

// LoadCatalog reads only the permissions section of a YAML file.
func LoadCatalog(path string) ([]roles.Permission, error) {
	var file rolesFile
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}
	catalog, err := toCatalog(file.Permissions)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return catalog, nil
}

func toCatalog(entries []permissionEntry) ([]roles.Permission, error) {
	out := make([]roles.Permission, 0, len(entries))
	for _, p := range entries {
		risk := roles.RiskLevel(strings.ToLower(strings.TrimSpace(p.RiskLevel)))
		switch risk {
		case "":
			risk = roles.RiskLow
		case roles.RiskLow, roles.RiskMedium, roles.RiskHigh:
		default:
			return nil, fmt.Errorf("permission %q: unknown risk level %q", p.ID, p.RiskLevel)
		}
		out = append(out, roles.Permission{ID: p.ID, Module: p.Module, Resource: p.Resource, Action: p.Action, RiskLevel: risk})
	}
	return out, nil
}

// LoadOffices reads and validates office calendar profiles from a YAML
// file. Business hour keys are weekday names or numbers 0 (Sunday) to 6.
func LoadOffices(path string) ([]calendar.OfficeCalendarProfile, error) {
	var file officesFile
	if err := readYAML(path, &file); err != nil {
		return nil, err
	}
	if len(file.Offices) == 0 {
		return nil, fmt.Errorf("%s: no offices defined", path)
	}
	out := make([]calendar.OfficeCalendarProfile, 0, len(file.Offices))
	for _, entry := range file.Offices {
		profile, err := entry.profile()
		if err != nil {
			return nil, fmt.Errorf("%s: office %q: %w", path, entry.ID, err)
		}
		if err := calendar.Validate(profile); err != nil {
			return nil, fmt.Errorf("%s: office %q: %w", path, entry.ID, err)
		}
		out = append(out, profile)
	}
	return out, nil
}

func (e officeEntry) profile() (calendar.OfficeCalendarProfile, error) {
	hours := make(map[time.Weekday]calendar.DayHours, len(e.BusinessHours))
	for key, day := range e.BusinessHours {
		wd, err := parseWeekday(key)
		if err != nil {
			return calendar.OfficeCalendarProfile{}, err
		}
		hours[wd] = day
	}
	holidays := make([]calendar.Holiday, 0, len(e.Holidays))
	for _, h := range e.Holidays {
		date, err := calendar.ParseDate(h.Date)
		if err != nil {
			return calendar.OfficeCalendarProfile{}, fmt.Errorf("holiday %q: %w", h.Name, err)
		}
		holidays = append(holidays, calendar.Holiday{Date: date, Name: h.Name, IsRecurring: h.IsRecurring})
	}
	return calendar.OfficeCalendarProfile{
		ID:              e.ID,
		Name:            e.Name,
		Timezone:        e.Timezone,
		BusinessHours:   hours,
		Holidays:        holidays,
		EscalationRules: e.EscalationRules,
	}, nil
}

func parseWeekday(key string) (time.Weekday, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if n, err := strconv.Atoi(key); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("weekday %d out of range", n)
		}
		return time.Weekday(n), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if key == name || key == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", key)
}

func readYAML(path string, dest any) error {
	if path == "" {
		return errors.New("--file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
