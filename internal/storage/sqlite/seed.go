package sqlite

import (
    "context"
    "fmt"
    "os"
    "time"

    goyaml "gopkg.in/yaml.v3"

    "github.com/hihikaAAa/task-assist-bot/internal/model"
)

// Roster is the seed file layout:
//
//  users:
//    - tag: "@ivan"
//      full_name: Иванов Иван
//      role: employee
//      birth_date: 1990-04-12
//      skills: [{name: Go, years: 5}]
type Roster struct {
    Users []RosterUser `yaml:"users"`
}

type RosterUser struct {
    Tag       string        `yaml:"tag"`
    FullName  string        `yaml:"full_name"`
    Role      string        `yaml:"role"`
    Bio       string        `yaml:"bio"`
    BirthDate string        `yaml:"birth_date"`
    Skills    []RosterSkill `yaml:"skills"`
}

type RosterSkill struct {
    Name  string `yaml:"name"`
    Years int    `yaml:"years"`
}

func LoadRoster(path string) (*Roster, error) {
    b, err := os.ReadFile(path)
    if err != nil { return nil, err }
    r := &Roster{}
    if err := goyaml.Unmarshal(b, r); err != nil {
        return nil, fmt.Errorf("parse roster: %w", err)
    }
    return r, nil
}

// Seed upserts every roster user with their skills and returns how many users were written.
func (d *DB) Seed(ctx context.Context, r *Roster) (int, error) {
    n := 0
    for _, ru := range r.Users {
        role := model.Role(ru.Role)
        if role != model.RoleManager { role = model.RoleEmployee }
        u := &model.User{Tag: ru.Tag, FullName: ru.FullName, Role: role, Bio: ru.Bio}
        if ru.BirthDate != "" {
            bd, err := time.ParseInLocation("2006-01-02", ru.BirthDate, time.Local)
            if err != nil { return n, fmt.Errorf("user %s: birth_date: %w", ru.Tag, err) }
            u.BirthDate = bd
        }
        if err := d.UpsertUser(ctx, u); err != nil { return n, err }
        for _, s := range ru.Skills {
            if err := d.AddSkill(ctx, ru.Tag, model.Skill{Name: s.Name, Years: s.Years}); err != nil { return n, err }
        }
        n++
    }
    return n, nil
}
