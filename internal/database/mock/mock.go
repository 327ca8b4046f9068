// Package mock provides an in-memory database.RecordStore for testing.
package mock

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

// state holds every table. It is cloned to give transactions a private copy.
type state struct {
	classes    map[int64]database.Class
	students   map[int64]database.Student
	enrollment map[int64]map[int64]struct{} // student -> classes
	embeddings []database.Embedding
	attendance []database.AttendanceEvent
	nextID     int64
}

func newState() *state {
	return &state{
		classes:    make(map[int64]database.Class),
		students:   make(map[int64]database.Student),
		enrollment: make(map[int64]map[int64]struct{}),
	}
}

func (s *state) clone() *state {
	c := &state{
		classes:    make(map[int64]database.Class, len(s.classes)),
		students:   make(map[int64]database.Student, len(s.students)),
		enrollment: make(map[int64]map[int64]struct{}, len(s.enrollment)),
		embeddings: slices.Clone(s.embeddings),
		attendance: slices.Clone(s.attendance),
		nextID:     s.nextID,
	}
	for id, v := range s.classes {
		c.classes[id] = v
	}
	for id, v := range s.students {
		c.students[id] = v
	}
	for id, classes := range s.enrollment {
		m := make(map[int64]struct{}, len(classes))
		for classID := range classes {
			m[classID] = struct{}{}
		}
		c.enrollment[id] = m
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// RecordStore is an in-memory database.RecordStore. It enforces the same
// foreign key, uniqueness and delete rules as the PostgreSQL store.
type RecordStore struct {
	mu   sync.Mutex
	data *state
	dim  int

	// Now stamps created and updated times.
	Now func() time.Time

	// Error injection
	WithTransactionError  error
	ListEnrolledError     error
	ListEmbeddingsError   error
	RecordAttendanceError error
	QueryError            error

	// Calls counts RecordAttendance invocations that reached storage.
	RecordCalls int
}

var _ database.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates an empty store for embeddings of dimension dim.
// A non-positive dim selects database.DefaultEmbeddingDim.
func NewRecordStore(dim int) *RecordStore {
	if dim <= 0 {
		dim = database.DefaultEmbeddingDim
	}
	return &RecordStore{data: newState(), dim: dim, Now: time.Now}
}

// view runs operations either directly against the store (taking the lock
// per call) or against a transaction's private copy (already locked).
type view struct {
	s    *RecordStore
	data *state
	inTx bool
}

func (r *RecordStore) view() *view {
	return &view{s: r}
}

// lock returns the state to operate on and the function releasing it.
func (v *view) lock() (*state, func()) {
	if v.inTx {
		return v.data, func() {}
	}
	v.s.mu.Lock()
	return v.s.data, v.s.mu.Unlock
}

// WithTransaction runs fn against a copy of the data and publishes it only
// when fn returns nil. Transactions are serialized with all other writes.
func (r *RecordStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx database.Stores) error) error {
	if r.WithTransactionError != nil {
		return r.WithTransactionError
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	work := r.data.clone()
	if err := fn(ctx, &view{s: r, data: work, inTx: true}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	r.data = work
	return nil
}

// ReadSnapshot runs fn against a private copy of the data that is discarded
// afterwards, so concurrent writers never show up halfway through fn.
func (r *RecordStore) ReadSnapshot(ctx context.Context, fn func(ctx context.Context, tx database.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	snapshot := r.data.clone()
	r.mu.Unlock()

	return fn(ctx, &view{s: r, data: snapshot, inTx: true})
}

// Close is a no-op.
func (r *RecordStore) Close() error {
	return nil
}

// Dim returns the configured embedding dimension.
func (r *RecordStore) Dim() int { return r.dim }

func (v *view) Dim() int { return v.s.dim }

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, database.ErrNotFound)
}

func referential(format string, args ...any) error {
	return fmt.Errorf("%w: %s", database.ErrReferentialViolation, fmt.Sprintf(format, args...))
}

// Classes

func (r *RecordStore) CreateClass(ctx context.Context, c *database.Class) error {
	return r.view().CreateClass(ctx, c)
}

func (v *view) CreateClass(ctx context.Context, c *database.Class) error {
	if err := database.ValidateClass(c); err != nil {
		return err
	}
	d, unlock := v.lock()
	defer unlock()

	c.ID = d.id()
	c.CreatedAt = v.s.Now()
	d.classes[c.ID] = *c
	return nil
}

func (r *RecordStore) GetClass(ctx context.Context, id int64) (*database.Class, error) {
	return r.view().GetClass(ctx, id)
}

func (v *view) GetClass(_ context.Context, id int64) (*database.Class, error) {
	d, unlock := v.lock()
	defer unlock()

	c, ok := d.classes[id]
	if !ok {
		return nil, notFound("class", id)
	}
	return &c, nil
}

func (r *RecordStore) ListClasses(ctx context.Context) ([]database.Class, error) {
	return r.view().ListClasses(ctx)
}

func (v *view) ListClasses(_ context.Context) ([]database.Class, error) {
	d, unlock := v.lock()
	defer unlock()

	out := make([]database.Class, 0, len(d.classes))
	for _, c := range d.classes {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b database.Class) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *RecordStore) UpdateClass(ctx context.Context, c *database.Class) error {
	return r.view().UpdateClass(ctx, c)
}

func (v *view) UpdateClass(_ context.Context, c *database.Class) error {
	if err := database.ValidateClass(c); err != nil {
		return err
	}
	d, unlock := v.lock()
	defer unlock()

	old, ok := d.classes[c.ID]
	if !ok {
		return notFound("class", c.ID)
	}
	c.CreatedAt = old.CreatedAt
	d.classes[c.ID] = *c
	return nil
}

func (r *RecordStore) DeleteClass(ctx context.Context, id int64) error {
	return r.view().DeleteClass(ctx, id)
}

func (v *view) DeleteClass(_ context.Context, id int64) error {
	d, unlock := v.lock()
	defer unlock()

	if _, ok := d.classes[id]; !ok {
		return notFound("class", id)
	}
	for _, ev := range d.attendance {
		if ev.ClassID == id {
			return referential("class %d has attendance records", id)
		}
	}
	for _, classes := range d.enrollment {
		delete(classes, id)
	}
	delete(d.classes, id)
	return nil
}

// Students

func (r *RecordStore) CreateStudent(ctx context.Context, s *database.Student) error {
	return r.view().CreateStudent(ctx, s)
}

func (v *view) CreateStudent(_ context.Context, s *database.Student) error {
	if err := database.ValidateStudent(s); err != nil {
		return err
	}
	d, unlock := v.lock()
	defer unlock()

	for _, classID := range s.ClassIDs {
		if _, ok := d.classes[classID]; !ok {
			return referential("class %d does not exist", classID)
		}
	}

	s.ID = d.id()
	s.CreatedAt = v.s.Now()
	classes := make(map[int64]struct{}, len(s.ClassIDs))
	for _, classID := range s.ClassIDs {
		classes[classID] = struct{}{}
	}
	d.enrollment[s.ID] = classes

	row := *s
	row.ClassIDs = nil
	d.students[s.ID] = row
	return nil
}

func (r *RecordStore) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	return r.view().GetStudent(ctx, id)
}

func (v *view) GetStudent(_ context.Context, id int64) (*database.Student, error) {
	d, unlock := v.lock()
	defer unlock()

	s, ok := d.students[id]
	if !ok {
		return nil, notFound("student", id)
	}
	s.ClassIDs = []int64{}
	for classID := range d.enrollment[id] {
		s.ClassIDs = append(s.ClassIDs, classID)
	}
	slices.Sort(s.ClassIDs)
	return &s, nil
}

func (r *RecordStore) ListStudents(ctx context.Context) ([]database.Student, error) {
	return r.view().ListStudents(ctx)
}

func (v *view) ListStudents(_ context.Context) ([]database.Student, error) {
	d, unlock := v.lock()
	defer unlock()
	return sortedStudents(d, func(database.Student) bool { return true }), nil
}

func (r *RecordStore) FindStudentsByName(ctx context.Context, name string) ([]database.Student, error) {
	return r.view().FindStudentsByName(ctx, name)
}

func (v *view) FindStudentsByName(_ context.Context, name string) ([]database.Student, error) {
	key := database.NormalizeName(name)
	d, unlock := v.lock()
	defer unlock()
	return sortedStudents(d, func(s database.Student) bool {
		return database.NormalizeName(s.Name) == key
	}), nil
}

func sortedStudents(d *state, keep func(database.Student) bool) []database.Student {
	var out []database.Student
	for _, s := range d.students {
		if keep(s) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b database.Student) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *RecordStore) UpdateStudent(ctx context.Context, s *database.Student) error {
	return r.view().UpdateStudent(ctx, s)
}

func (v *view) UpdateStudent(_ context.Context, s *database.Student) error {
	if err := database.ValidateStudent(s); err != nil {
		return err
	}
	d, unlock := v.lock()
	defer unlock()

	old, ok := d.students[s.ID]
	if !ok {
		return notFound("student", s.ID)
	}
	old.Name = s.Name
	d.students[s.ID] = old
	return nil
}

func (r *RecordStore) DeleteStudent(ctx context.Context, id int64) error {
	return r.view().DeleteStudent(ctx, id)
}

func (v *view) DeleteStudent(_ context.Context, id int64) error {
	d, unlock := v.lock()
	defer unlock()

	if _, ok := d.students[id]; !ok {
		return notFound("student", id)
	}
	for _, ev := range d.attendance {
		if ev.StudentID == id {
			return referential("student %d has attendance records", id)
		}
	}
	d.embeddings = slices.DeleteFunc(d.embeddings, func(e database.Embedding) bool { return e.StudentID == id })
	delete(d.enrollment, id)
	delete(d.students, id)
	return nil
}

func (r *RecordStore) Enroll(ctx context.Context, studentID, classID int64) error {
	return r.view().Enroll(ctx, studentID, classID)
}

func (v *view) Enroll(_ context.Context, studentID, classID int64) error {
	d, unlock := v.lock()
	defer unlock()

	if _, ok := d.students[studentID]; !ok {
		return referential("student %d does not exist", studentID)
	}
	if _, ok := d.classes[classID]; !ok {
		return referential("class %d does not exist", classID)
	}
	if d.enrollment[studentID] == nil {
		d.enrollment[studentID] = make(map[int64]struct{})
	}
	d.enrollment[studentID][classID] = struct{}{}
	return nil
}

func (r *RecordStore) Unenroll(ctx context.Context, studentID, classID int64) error {
	return r.view().Unenroll(ctx, studentID, classID)
}

func (v *view) Unenroll(_ context.Context, studentID, classID int64) error {
	d, unlock := v.lock()
	defer unlock()

	if _, ok := d.enrollment[studentID][classID]; !ok {
		return fmt.Errorf("enrollment of student %d in class %d: %w", studentID, classID, database.ErrNotFound)
	}
	delete(d.enrollment[studentID], classID)
	return nil
}

func (r *RecordStore) ListEnrolled(ctx context.Context, classID int64) ([]database.Student, error) {
	return r.view().ListEnrolled(ctx, classID)
}

func (v *view) ListEnrolled(_ context.Context, classID int64) ([]database.Student, error) {
	if v.s.ListEnrolledError != nil {
		return nil, v.s.ListEnrolledError
	}
	d, unlock := v.lock()
	defer unlock()

	if _, ok := d.classes[classID]; !ok {
		return nil, notFound("class", classID)
	}
	out := sortedStudents(d, func(s database.Student) bool {
		_, ok := d.enrollment[s.ID][classID]
		return ok
	})
	for i := range out {
		out[i].ClassIDs = []int64{classID}
	}
	return out, nil
}

// Embeddings

func (r *RecordStore) AddEmbedding(ctx context.Context, studentID int64, vector []float32) (*database.Embedding, error) {
	return r.view().AddEmbedding(ctx, studentID, vector)
}

func (v *view) AddEmbedding(_ context.Context, studentID int64, vector []float32) (*database.Embedding, error) {
	if err := database.ValidateVector(vector, v.s.dim); err != nil {
		return nil, err
	}
	d, unlock := v.lock()
	defer unlock()

	if _, ok := d.students[studentID]; !ok {
		return nil, referential("student %d does not exist", studentID)
	}
	emb := database.Embedding{
		ID:        d.id(),
		StudentID: studentID,
		Vector:    slices.Clone(vector),
		CreatedAt: v.s.Now(),
	}
	d.embeddings = append(d.embeddings, emb)

	out := emb
	out.Vector = slices.Clone(emb.Vector)
	return &out, nil
}

func (r *RecordStore) ListEmbeddings(ctx context.Context, studentIDs []int64) ([]database.Embedding, error) {
	return r.view().ListEmbeddings(ctx, studentIDs)
}

func (v *view) ListEmbeddings(_ context.Context, studentIDs []int64) ([]database.Embedding, error) {
	if v.s.ListEmbeddingsError != nil {
		return nil, v.s.ListEmbeddingsError
	}
	if len(studentIDs) == 0 {
		return nil, nil
	}
	d, unlock := v.lock()
	defer unlock()

	var out []database.Embedding
	for _, e := range d.embeddings {
		if slices.Contains(studentIDs, e.StudentID) {
			e.Vector = slices.Clone(e.Vector)
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b database.Embedding) int {
		return cmp.Or(cmp.Compare(a.StudentID, b.StudentID), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r *RecordStore) CountEmbeddings(ctx context.Context, studentID int64) (int, error) {
	return r.view().CountEmbeddings(ctx, studentID)
}

func (v *view) CountEmbeddings(_ context.Context, studentID int64) (int, error) {
	d, unlock := v.lock()
	defer unlock()

	n := 0
	for _, e := range d.embeddings {
		if e.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (r *RecordStore) DeleteEmbeddings(ctx context.Context, studentID int64) (int, error) {
	return r.view().DeleteEmbeddings(ctx, studentID)
}

func (v *view) DeleteEmbeddings(_ context.Context, studentID int64) (int, error) {
	d, unlock := v.lock()
	defer unlock()

	if _, ok := d.students[studentID]; !ok {
		return 0, notFound("student", studentID)
	}
	before := len(d.embeddings)
	d.embeddings = slices.DeleteFunc(d.embeddings, func(e database.Embedding) bool { return e.StudentID == studentID })
	return before - len(d.embeddings), nil
}

// Attendance

func (r *RecordStore) RecordAttendance(ctx context.Context, classID, studentID int64, date time.Time, status database.Status) (*database.AttendanceEvent, error) {
	return r.view().RecordAttendance(ctx, classID, studentID, date, status)
}

func (v *view) RecordAttendance(_ context.Context, classID, studentID int64, date time.Time, status database.Status) (*database.AttendanceEvent, error) {
	if v.s.RecordAttendanceError != nil {
		return nil, v.s.RecordAttendanceError
	}
	if err := database.ValidateStatus(status); err != nil {
		return nil, err
	}
	day := database.DateOf(date)

	d, unlock := v.lock()
	defer unlock()
	v.s.RecordCalls++

	if _, ok := d.classes[classID]; !ok {
		return nil, referential("class %d does not exist", classID)
	}
	if _, ok := d.students[studentID]; !ok {
		return nil, referential("student %d does not exist", studentID)
	}
	for _, ev := range d.attendance {
		if ev.ClassID == classID && ev.StudentID == studentID && ev.Date.Equal(day) {
			return nil, fmt.Errorf("class %d, student %d, %s: %w",
				classID, studentID, day.Format(database.DateLayout), database.ErrDuplicateAttendance)
		}
	}

	now := v.s.Now()
	ev := database.AttendanceEvent{
		ID:        d.id(),
		ClassID:   classID,
		StudentID: studentID,
		Date:      day,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.attendance = append(d.attendance, ev)
	return &ev, nil
}

func (r *RecordStore) UpdateAttendance(ctx context.Context, id int64, status database.Status) error {
	return r.view().UpdateAttendance(ctx, id, status)
}

func (v *view) UpdateAttendance(_ context.Context, id int64, status database.Status) error {
	if err := database.ValidateStatus(status); err != nil {
		return err
	}
	d, unlock := v.lock()
	defer unlock()

	for i := range d.attendance {
		if d.attendance[i].ID == id {
			d.attendance[i].Status = status
			d.attendance[i].UpdatedAt = v.s.Now()
			return nil
		}
	}
	return notFound("attendance", id)
}

func (r *RecordStore) GetAttendance(ctx context.Context, id int64) (*database.AttendanceEvent, error) {
	return r.view().GetAttendance(ctx, id)
}

func (v *view) GetAttendance(_ context.Context, id int64) (*database.AttendanceEvent, error) {
	d, unlock := v.lock()
	defer unlock()

	for _, ev := range d.attendance {
		if ev.ID == id {
			return &ev, nil
		}
	}
	return nil, notFound("attendance", id)
}

func (r *RecordStore) QueryByClass(ctx context.Context, classID int64) iter.Seq2[database.AttendanceEvent, error] {
	return r.view().QueryByClass(ctx, classID)
}

func (v *view) QueryByClass(ctx context.Context, classID int64) iter.Seq2[database.AttendanceEvent, error] {
	return v.query(ctx, func(d *state) error {
		if _, ok := d.classes[classID]; !ok {
			return notFound("class", classID)
		}
		return nil
	}, func(ev database.AttendanceEvent) bool { return ev.ClassID == classID })
}

func (r *RecordStore) QueryByStudent(ctx context.Context, studentID int64) iter.Seq2[database.AttendanceEvent, error] {
	return r.view().QueryByStudent(ctx, studentID)
}

func (v *view) QueryByStudent(ctx context.Context, studentID int64) iter.Seq2[database.AttendanceEvent, error] {
	return v.query(ctx, func(d *state) error {
		if _, ok := d.students[studentID]; !ok {
			return notFound("student", studentID)
		}
		return nil
	}, func(ev database.AttendanceEvent) bool { return ev.StudentID == studentID })
}

func (r *RecordStore) QueryByDateRange(ctx context.Context, start, end time.Time) iter.Seq2[database.AttendanceEvent, error] {
	return r.view().QueryByDateRange(ctx, start, end)
}

func (v *view) QueryByDateRange(ctx context.Context, start, end time.Time) iter.Seq2[database.AttendanceEvent, error] {
	start, end = database.DateOf(start), database.DateOf(end)
	return v.query(ctx, func(*state) error {
		if start.After(end) {
			return database.Invalid("date range start %s is after end %s",
				start.Format(database.DateLayout), end.Format(database.DateLayout))
		}
		return nil
	}, func(ev database.AttendanceEvent) bool {
		return !ev.Date.Before(start) && !ev.Date.After(end)
	})
}

// query snapshots the matching events each time the sequence is ranged over.
func (v *view) query(ctx context.Context, check func(*state) error, keep func(database.AttendanceEvent) bool) iter.Seq2[database.AttendanceEvent, error] {
	return func(yield func(database.AttendanceEvent, error) bool) {
		if v.s.QueryError != nil {
			yield(database.AttendanceEvent{}, v.s.QueryError)
			return
		}
		if err := ctx.Err(); err != nil {
			yield(database.AttendanceEvent{}, err)
			return
		}

		d, unlock := v.lock()
		if err := check(d); err != nil {
			unlock()
			yield(database.AttendanceEvent{}, err)
			return
		}
		var events []database.AttendanceEvent
		for _, ev := range d.attendance {
			if keep(ev) {
				events = append(events, ev)
			}
		}
		unlock()

		slices.SortStableFunc(events, func(a, b database.AttendanceEvent) int {
			return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.ID, b.ID))
		})
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}
