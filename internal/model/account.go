package model

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/repository"
)

// Account is a registered user. The zero id is the anonymous account: it
// never exists, can view nothing and every mutation on it is a no-op.
type Account struct {
	e  *Entities
	id int64
	h  *repository.Handle
}

// AccountView is the read-only, JSON-ready snapshot of an account. The
// password hash is never part of it.
type AccountView struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	Verified     bool      `json:"verified"`
	RegisteredOn time.Time `json:"registeredOn"`
	ClassIDs     []string  `json:"classIds"`
}

// accountDoc mirrors the stored document.
type accountDoc struct {
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Verified     bool      `json:"verified"`
	RegisteredOn time.Time `json:"registered_on"`
	ClassIDs     []string  `json:"class_ids"`
}

func accountKey(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// Account returns a handle for the account with the given id. Nothing is
// read until the account is used; check Exists when it matters.
func (e *Entities) Account(id int64) *Account {
	return &Account{e: e, id: id, h: repository.NewHandle(e.accounts, accountKey(id))}
}

// Anonymous returns the account that stands for "nobody is logged in".
func (e *Entities) Anonymous() *Account {
	return e.Account(0)
}

// AccountByEmail looks an account up by email, ignoring case. It returns
// the anonymous account when nobody has registered that address.
func (e *Entities) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	docs, err := e.accounts.Find(ctx, repository.Query{
		Filters: []repository.Filter{repository.Eq("email", normalizeEmail(email))},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("model: finding account by email: %w", err)
	}
	if len(docs) == 0 {
		return e.Anonymous(), nil
	}

	key, _ := docs[0][repository.IDField].(string)
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("model: account id %q: %w", key, err)
	}
	return &Account{e: e, id: id, h: repository.NewLoadedHandle(e.accounts, docs[0])}, nil
}

// CreateAccount registers a new, unverified account.
//
// The id comes from the store's atomic counter, so concurrent registrations
// never share one. Email uniqueness is checked by lookup first, which is best
// effort: two simultaneous registrations of one address can both pass.
func (e *Entities) CreateAccount(ctx context.Context, email, password string) (*Account, error) {
	email = normalizeEmail(email)
	local, _, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return nil, apperror.ValidationFailed("email", "email address is not valid")
	}

	existing, err := e.AccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !existing.IsAnonymous() {
		return nil, apperror.Conflict("email", email)
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	id, err := e.store.Increment(ctx, accountCounter)
	if err != nil {
		return nil, fmt.Errorf("model: allocating account id: %w", err)
	}

	_, err = e.accounts.Insert(ctx, accountKey(id), repository.Document{
		"email":         email,
		"password_hash": hash,
		"display_name":  local,
		"verified":      false,
		"registered_on": e.timestamp(),
		"class_ids":     []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("model: inserting account %d: %w", id, err)
	}
	return e.Account(id), nil
}

// ID returns the account id, 0 for anonymous. It is safe on a nil receiver.
func (a *Account) ID() int64 {
	if a == nil {
		return 0
	}
	return a.id
}

// IsAnonymous reports whether a stands for nobody.
func (a *Account) IsAnonymous() bool {
	return a.ID() == 0
}

// Equal compares ids; two anonymous accounts are equal.
func (a *Account) Equal(b *Account) bool {
	return a.ID() == b.ID()
}

func (a *Account) Exists(ctx context.Context) (bool, error) {
	if a.IsAnonymous() {
		return false, nil
	}
	return a.h.Exists(ctx)
}

// Refresh drops the cached document.
func (a *Account) Refresh(ctx context.Context) error {
	if a.IsAnonymous() {
		return nil
	}
	_, err := a.h.Fetch(ctx, true)
	return err
}

func (a *Account) Email(ctx context.Context) (string, error) {
	return fieldOr(ctx, a.h, "email", "")
}

func (a *Account) DisplayName(ctx context.Context) (string, error) {
	return fieldOr(ctx, a.h, "display_name", "")
}

func (a *Account) Verified(ctx context.Context) (bool, error) {
	return fieldOr(ctx, a.h, "verified", false)
}

// ClassIDs returns the ids of the classes the account has joined, in join
// order.
func (a *Account) ClassIDs(ctx context.Context) ([]string, error) {
	return fieldOr(ctx, a.h, "class_ids", []string{})
}

func (a *Account) SetVerified(ctx context.Context, verified bool) error {
	return a.h.Set(ctx, "verified", verified)
}

func (a *Account) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.ValidationFailed("displayName", "display name must not be empty")
	}
	return a.h.Set(ctx, "display_name", name)
}

// SetPassword stores the hash of password.
func (a *Account) SetPassword(ctx context.Context, password string) error {
	hash, err := a.e.hasher.Hash(password)
	if err != nil {
		return apperror.ValidationFailed("password", err.Error())
	}
	return a.h.Set(ctx, "password_hash", hash)
}

// CheckPassword reports whether password matches the stored hash. A missing
// account never matches.
func (a *Account) CheckPassword(ctx context.Context, password string) (bool, error) {
	hash, err := fieldOr(ctx, a.h, "password_hash", "")
	if err != nil || hash == "" {
		return false, err
	}
	return a.e.hasher.Verify(hash, password) == nil, nil
}

// View returns the account snapshot, or NotFound.
func (a *Account) View(ctx context.Context) (*AccountView, error) {
	var doc accountDoc
	ok, err := a.h.Decode(ctx, &doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("account", accountKey(a.id))
	}
	if doc.ClassIDs == nil {
		doc.ClassIDs = []string{}
	}
	return &AccountView{
		ID:           a.id,
		Email:        doc.Email,
		DisplayName:  doc.DisplayName,
		Verified:     doc.Verified,
		RegisteredOn: doc.RegisteredOn,
		ClassIDs:     doc.ClassIDs,
	}, nil
}

// Classes lists the account's classes, in store order. Each range over the
// result re-reads the account's class list and re-runs the query.
func (a *Account) Classes(ctx context.Context, archived ArchiveFilter) iter.Seq2[*Class, error] {
	return seqOf(func() ([]*Class, error) {
		if err := a.Refresh(ctx); err != nil {
			return nil, err
		}
		ids, err := a.ClassIDs(ctx)
		if err != nil || len(ids) == 0 {
			return nil, err
		}

		filters := []repository.Filter{repository.In(repository.IDField, ids)}
		if f, ok := archived.filter(); ok {
			filters = append(filters, f)
		}
		docs, err := a.e.classes.Find(ctx, repository.Query{Filters: filters})
		if err != nil {
			return nil, fmt.Errorf("model: finding classes of account %d: %w", a.id, err)
		}

		classes := make([]*Class, 0, len(docs))
		for _, doc := range docs {
			classes = append(classes, &Class{e: a.e, h: repository.NewLoadedHandle(a.e.classes, doc)})
		}
		return classes, nil
	})
}

// Tasks lists the tasks of every class the account belongs to.
//
// When only unarchived tasks are asked for, archived classes are skipped
// too. Sorting happens before the limit, so a limited listing holds the
// earliest (or latest) tasks overall.
func (a *Account) Tasks(ctx context.Context, q TaskQuery) iter.Seq2[*Task, error] {
	return seqOf(func() ([]*Task, error) {
		classFilter := AnyArchived
		if q.Archived == OnlyUnarchived {
			classFilter = OnlyUnarchived
		}

		var all []*Task
		for c, err := range a.Classes(ctx, classFilter) {
			if err != nil {
				return nil, err
			}
			tasks, err := a.e.findTasks(ctx,
				[]repository.Filter{repository.Eq("class_id", c.ID())},
				TaskQuery{Archived: q.Archived, Range: q.Range, Order: Unordered},
			)
			if err != nil {
				return nil, err
			}
			all = append(all, tasks...)
		}

		if err := sortByDate(ctx, all, q.Order); err != nil {
			return nil, err
		}
		if q.Limit > 0 && len(all) > q.Limit {
			all = all[:q.Limit]
		}
		return all, nil
	})
}

// Join adds class to the account's list. It is allowed only when the account
// can already view the class (it owns it or was added as a member) and
// reports whether the join happened. Joining twice is harmless.
func (a *Account) Join(ctx context.Context, c *Class) (bool, error) {
	ok, err := c.CanView(ctx, a)
	if err != nil || !ok {
		return false, err
	}
	if err := a.h.Push(ctx, "class_ids", c.ID(), true); err != nil {
		return false, fmt.Errorf("model: account %d joining class %s: %w", a.id, c.ID(), err)
	}
	return true, nil
}

// Leave removes class from the account's list and reports whether it was
// there. A non-owner is also dropped from the class's members, so after
// leaving the account can no longer view the class.
func (a *Account) Leave(ctx context.Context, c *Class) (bool, error) {
	removed, err := a.unlink(ctx, c.ID())
	if err != nil {
		return false, err
	}

	owner, err := c.OwnerID(ctx)
	if err != nil {
		return false, err
	}
	if owner != a.id {
		if _, err := c.h.Pull(ctx, "member_ids", a.id); err != nil {
			return false, fmt.Errorf("model: removing account %d from class %s: %w", a.id, c.ID(), err)
		}
	}
	return removed, nil
}

// LeaveInvisibleClasses leaves every listed class the account can no longer
// view (ownership moved, membership revoked, class gone) and returns how many
// it left.
func (a *Account) LeaveInvisibleClasses(ctx context.Context) (int, error) {
	ids, err := a.ClassIDs(ctx)
	if err != nil {
		return 0, err
	}

	left := 0
	for _, id := range ids {
		c := a.e.Class(id)
		visible, err := c.CanView(ctx, a)
		if err != nil {
			return left, err
		}
		if visible {
			continue
		}
		removed, err := a.unlink(ctx, id)
		if err != nil {
			return left, err
		}
		if removed {
			left++
		}
	}
	return left, nil
}

// unlink drops classID from class_ids without touching the class.
func (a *Account) unlink(ctx context.Context, classID string) (bool, error) {
	if a.IsAnonymous() {
		return false, nil
	}
	removed, err := a.h.Pull(ctx, "class_ids", classID)
	if err != nil {
		return false, fmt.Errorf("model: account %d leaving class %s: %w", a.id, classID, err)
	}
	return removed, nil
}
