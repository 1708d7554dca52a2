package offline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbot/internal/errors"
	"whatsbot/pkg/botapi"
)

var fixedNow = time.Date(2024, time.January, 21, 18, 0, 0, 0, time.UTC)

func newBackend(opts ...Option) *Backend {
	return New(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestAnalyticsFixture(t *testing.T) {
	data, err := newBackend().GetAnalytics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 42, data.TotalContacts)
	assert.Equal(t, 38, data.ActiveContacts)
	assert.Equal(t, 1247, data.TotalMessages)
	assert.Equal(t, 892, data.AIResponses)
	assert.Equal(t, 89.5, data.ResponseRate)
	assert.Equal(t, 2.3, data.AvgResponseTime)
	require.Len(t, data.TopContacts, 3)
	assert.Equal(t, "Carlos López", data.TopContacts[2].Name)
	assert.Len(t, data.DailyStats, 7)
	assert.Equal(t, 71, data.DailyStats["2024-01-21"])
}

func TestContactsFixture(t *testing.T) {
	contacts, err := newBackend().ListContacts(context.Background(), botapi.ListContactsParams{})
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	assert.Equal(t, "1", contacts[0].ID)
	assert.Equal(t, "Juan Pérez", contacts[0].Name)
	assert.Equal(t, []string{"cliente", "premium"}, contacts[0].Tags)
	assert.Equal(t, "2024-01-21T18:00:00.000Z", contacts[0].LastMessageAt)
	assert.Equal(t, "2024-01-21T17:00:00.000Z", contacts[1].LastMessageAt)
	for _, c := range contacts {
		assert.NoError(t, c.Validate())
	}
}

func TestTrainingFixture(t *testing.T) {
	items, err := newBackend().ListTrainingData(context.Background(), botapi.PageParams{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Saludo de Rubén", items[0].Title)
	assert.Equal(t, 45, items[0].WordCount)
}

func TestListContacts_FilterAndPage(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	blocked := botapi.StatusBlocked
	_, err := b.UpdateContact(ctx, "2", botapi.ContactUpdate{Status: &blocked})
	require.NoError(t, err)

	active, err := b.ListContacts(ctx, botapi.ListContactsParams{Status: botapi.StatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "1", active[0].ID)

	paged, err := b.ListContacts(ctx, botapi.ListContactsParams{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "2", paged[0].ID)

	empty, err := b.ListContacts(ctx, botapi.ListContactsParams{Skip: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = b.ListContacts(ctx, botapi.ListContactsParams{Status: "archived"})
	assert.Error(t, err)
}

func TestContactLifecycle(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	created, err := b.CreateContact(ctx, botapi.ContactInput{PhoneNumber: "+34555666777", Name: "Carlos López", AIEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, "3", created.ID)
	assert.Equal(t, botapi.StatusActive, created.Status)

	_, err = b.CreateContact(ctx, botapi.ContactInput{PhoneNumber: "+34555666777"})
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusCode(err))

	name := "Carlos L."
	updated, err := b.UpdateContact(ctx, "3", botapi.ContactUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Carlos L.", updated.Name)

	require.NoError(t, b.DeleteContact(ctx, "3"))
	_, err = b.GetContact(ctx, "3")
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, "Contacto no encontrado", errors.GetUserMessage(err))
}

func TestReturnedContactsAreCopies(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	c, err := b.GetContact(ctx, "1")
	require.NoError(t, err)
	c.Name = "mutated"
	c.Tags[0] = "mutated"

	again, err := b.GetContact(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Juan Pérez", again.Name)
	assert.Equal(t, "cliente", again.Tags[0])
}

func TestSendMessage(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	require.NoError(t, b.SendMessage(ctx, "1", "¿Vienes mañana?"))

	messages, err := b.ListMessages(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, botapi.DirectionOutgoing, messages[0].Direction)
	assert.Equal(t, "¿Vienes mañana?", messages[0].Content)

	contact, err := b.GetContact(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 46, contact.MessageCount)

	assert.Error(t, b.SendMessage(ctx, "404", "hola"))
	assert.Error(t, b.SendMessage(ctx, "1", ""))
}

func TestListMessages_Limit(t *testing.T) {
	b := newBackend()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.SendMessage(ctx, "2", strings.Repeat("x", i+1)))
	}

	messages, err := b.ListMessages(ctx, "2", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "xxxx", messages[0].Content)
	assert.Equal(t, "xxxxx", messages[1].Content)
}

func TestAIConfig(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	global, err := b.GetAIConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, global)
	assert.True(t, global.IsGlobal())
	assert.Equal(t, 0.7, global.Temperature)

	none, err := b.GetContactAIConfig(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, none)

	in := botapi.DefaultAIConfigInput()
	in.ContactID = "1"
	in.SystemPrompt = "Sé breve"
	override, err := b.CreateAIConfig(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "1", override.ContactID)

	disabled := false
	updated, err := b.UpdateAIConfig(ctx, override.ID, botapi.AIConfigUpdate{Enabled: &disabled})
	require.NoError(t, err)
	assert.False(t, updated.Enabled)

	_, err = b.UpdateAIConfig(ctx, "missing", botapi.AIConfigUpdate{Enabled: &disabled})
	assert.True(t, errors.IsNotFound(err))
}

func TestTrainingLifecycle(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	item, err := b.CreateTrainingData(ctx, botapi.TrainingDataInput{Title: "Horario", Content: "Abrimos de 7 a 22", Active: true})
	require.NoError(t, err)
	assert.Equal(t, botapi.DefaultCategory, item.Category)
	assert.Equal(t, 5, item.WordCount)

	require.NoError(t, b.UploadTrainingFile(ctx, "faq.txt", strings.NewReader("Pregunta uno")))
	items, err := b.ListTrainingData(ctx, botapi.PageParams{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "faq.txt", items[2].Title)
	assert.Equal(t, "upload", items[2].Category)

	require.NoError(t, b.DeleteTrainingData(ctx, item.ID))
	assert.True(t, errors.IsNotFound(b.DeleteTrainingData(ctx, item.ID)))
	assert.Error(t, b.UploadTrainingFile(ctx, "image.png", strings.NewReader("x")))
}

func TestBroadcast(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	paused := botapi.StatusPaused
	_, err := b.UpdateContact(ctx, "2", botapi.ContactUpdate{Status: &paused})
	require.NoError(t, err)

	result, err := b.Broadcast(ctx, []string{"1", "2", "9"}, "Clase extra el sábado")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, []string{"Contacto +34987654321 no está activo", "Contacto 9 no encontrado"}, result.Errors)
}

func TestTestAIResponseAndHealth(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	reply, err := b.TestAIResponse(ctx, "2", "Hola")
	require.NoError(t, err)
	assert.Equal(t, "María García", reply.ContactName)
	assert.Equal(t, "Hola", reply.OriginalMessage)

	_, err = b.TestAIResponse(ctx, "404", "Hola")
	assert.True(t, errors.IsNotFound(err))

	health, err := b.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.Healthy())

	summaries, err := b.ListSummaries(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestSimulatedLatency_HonorsCancellation(t *testing.T) {
	b := newBackend(WithSimulatedLatency())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.GetAnalytics(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), AnalyticsLatency)
}

func TestConcurrentAccess(t *testing.T) {
	b := newBackend()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = b.SendMessage(ctx, "1", "hola")
		}()
		go func() {
			defer wg.Done()
			_, _ = b.ListContacts(ctx, botapi.ListContactsParams{})
		}()
	}
	wg.Wait()

	contact, err := b.GetContact(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 65, contact.MessageCount)
}
