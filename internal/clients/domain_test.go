package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printhub/backoffice/internal/shared"
)

func intPtr(v int) *int { return &v }

func TestDueDateFromCreditDays(t *testing.T) {
	c := Client{CreditDays: intPtr(30)}
	due := c.DueDate(time.Date(2024, 1, 15, 17, 45, 0, 0, time.UTC))
	require.NotNil(t, due)
	require.Equal(t, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), *due)
}

func TestDueDateFromPaymentDayClampsToMonthEnd(t *testing.T) {
	c := Client{PaymentDay: intPtr(31)}
	due := c.DueDate(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), *due)

	c = Client{PaymentDay: intPtr(10)}
	due = c.DueDate(time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), *due)
}

func TestDueDateCreditDaysWinOverPaymentDay(t *testing.T) {
	c := Client{CreditDays: intPtr(0), PaymentDay: intPtr(25)}
	due := c.DueDate(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), *due)
}

func TestDueDateWithoutTerms(t *testing.T) {
	require.Nil(t, Client{}.DueDate(time.Now()))
}

func TestDuplicateWindow(t *testing.T) {
	require.Equal(t, 30, Client{}.DuplicateWindow(30))
	require.Equal(t, 7, Client{DuplicateCheckDays: intPtr(7)}.DuplicateWindow(30))
}

type memoryStore struct {
	clients map[int64]Client
	nextID  int64
}

func (m *memoryStore) Get(ctx context.Context, id int64) (Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return c, nil
}

func (m *memoryStore) List(ctx context.Context, search string, limit, offset int) ([]Client, int, error) {
	var out []Client
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memoryStore) Create(ctx context.Context, in Input) (Client, error) {
	m.nextID++
	c := Client{ID: m.nextID, Name: in.Name, BusinessNo: in.BusinessNo, CreditDays: in.CreditDays, PaymentDay: in.PaymentDay}
	m.clients[c.ID] = c
	return c, nil
}

func (m *memoryStore) Update(ctx context.Context, id int64, in Input) (Client, error) {
	if _, ok := m.clients[id]; !ok {
		return Client{}, ErrClientNotFound
	}
	c := Client{ID: id, Name: in.Name, CreditDays: in.CreditDays, PaymentDay: in.PaymentDay}
	m.clients[id] = c
	return c, nil
}

func TestServiceCreateValidates(t *testing.T) {
	svc := NewService(&memoryStore{clients: map[int64]Client{}})

	_, err := svc.Create(context.Background(), Input{Name: "   "})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), Input{Name: "Hanbit Print", PaymentDay: intPtr(40)})
	require.ErrorIs(t, err, shared.ErrValidation)

	c, err := svc.Create(context.Background(), Input{Name: "  Hanbit Print ", CreditDays: intPtr(15)})
	require.NoError(t, err)
	require.Equal(t, "Hanbit Print", c.Name)

	_, err = svc.Update(context.Background(), 99, Input{Name: "Nobody"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
