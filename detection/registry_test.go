package detection

import (
	"sync"
	"testing"

	"go.viam.com/test"
)

func TestRecordCategories(t *testing.T) {
	r := NewRegistry()
	var notifications [][]string
	r.OnCategoriesChange(func(known []string) {
		notifications = append(notifications, known)
	})

	test.That(t, r.RecordCategories([]string{"Redshank", "Fat Hen", "Redshank"}), test.ShouldBeTrue)
	test.That(t, r.Known(), test.ShouldResemble, []string{"Fat Hen", "Redshank"})
	test.That(t, notifications, test.ShouldHaveLength, 1)

	t.Run("same batch again is a no-op", func(t *testing.T) {
		test.That(t, r.RecordCategories([]string{"Redshank", "Fat Hen"}), test.ShouldBeFalse)
		test.That(t, r.Known(), test.ShouldResemble, []string{"Fat Hen", "Redshank"})
		test.That(t, notifications, test.ShouldHaveLength, 1)
	})

	t.Run("subset and empty batches are no-ops", func(t *testing.T) {
		test.That(t, r.RecordCategories([]string{"Fat Hen"}), test.ShouldBeFalse)
		test.That(t, r.RecordCategories(nil), test.ShouldBeFalse)
		test.That(t, r.RecordCategories([]string{""}), test.ShouldBeFalse)
		test.That(t, notifications, test.ShouldHaveLength, 1)
	})

	t.Run("a new category notifies once", func(t *testing.T) {
		test.That(t, r.RecordCategories([]string{"Fat Hen", "Cleavers"}), test.ShouldBeTrue)
		test.That(t, notifications, test.ShouldHaveLength, 2)
		test.That(t, notifications[1], test.ShouldResemble, []string{"Cleavers", "Fat Hen", "Redshank"})
	})
}

func TestVisibleRegions(t *testing.T) {
	r := NewRegistry()
	r.RecordCategories([]string{"Fat Hen", "Redshank"})
	test.That(t, r.ToggleVisibility("Redshank"), test.ShouldBeTrue)

	regions := []Region{
		{ID: "a", Category: "Fat Hen"},
		{ID: "b", Category: "Redshank"},
	}
	visible := r.VisibleRegions(regions)
	test.That(t, visible, test.ShouldResemble, []Region{{ID: "a", Category: "Fat Hen"}})

	t.Run("toggling back restores the region", func(t *testing.T) {
		test.That(t, r.ToggleVisibility("Redshank"), test.ShouldBeFalse)
		test.That(t, r.IsHidden("Redshank"), test.ShouldBeFalse)
		test.That(t, r.VisibleRegions(regions), test.ShouldResemble, regions)
	})

	t.Run("later categories are visible by default", func(t *testing.T) {
		r.ToggleVisibility("Fat Hen")
		r.RecordCategories([]string{"Cleavers"})
		visible := r.VisibleRegions([]Region{{ID: "c", Category: "Cleavers"}, {ID: "d", Category: "Fat Hen"}})
		test.That(t, visible, test.ShouldResemble, []Region{{ID: "c", Category: "Cleavers"}})
	})

	t.Run("hidden entries survive absence", func(t *testing.T) {
		test.That(t, r.VisibleRegions(nil), test.ShouldBeEmpty)
		test.That(t, r.Hidden(), test.ShouldResemble, []string{"Fat Hen"})
	})
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	var calls int
	r.OnCategoriesChange(func(known []string) { calls++ })

	r.Reset()
	test.That(t, calls, test.ShouldEqual, 0)

	r.RecordCategories([]string{"Fat Hen"})
	r.ToggleVisibility("Fat Hen")
	r.Reset()
	test.That(t, calls, test.ShouldEqual, 2)
	test.That(t, r.Known(), test.ShouldBeEmpty)
	test.That(t, r.Hidden(), test.ShouldBeEmpty)

	test.That(t, r.RecordCategories([]string{"Fat Hen"}), test.ShouldBeTrue)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordCategories([]string{"Fat Hen", "Redshank"})
			r.ToggleVisibility("Redshank")
			r.VisibleRegions([]Region{{Category: "Redshank"}})
		}()
	}
	wg.Wait()
	test.That(t, r.Known(), test.ShouldResemble, []string{"Fat Hen", "Redshank"})
	test.That(t, r.IsHidden("Redshank"), test.ShouldBeFalse)
}
