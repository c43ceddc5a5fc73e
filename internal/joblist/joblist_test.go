package joblist

import (
	"context"
	"errors"
	"testing"

	"github.com/livinlefevreloca/postproc/internal/grouping"
	"github.com/livinlefevreloca/postproc/lib/fileset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mergeCommand  = "{exe} -o {output} {inputs}"
	flinesCommand = "{exe} -i {config} files/vtk_file={primary} files/out_file={output} initial_condition/seed_file={seed}"
)

func input(role, p string) grouping.Input {
	return grouping.Input{Role: role, File: fileset.SourceFile{Path: p}}
}

func mergeUnit(index string) grouping.WorkUnit {
	return grouping.WorkUnit{
		Base:  "cloud",
		Index: index,
		Inputs: []grouping.Input{
			input(grouping.RoleRank0, "id0/cloud."+index+".vtk"),
			input("id1", "id1/cloud-id1."+index+".vtk"),
		},
		Output: "merged/cloud." + index + ".vtk",
	}
}

func flinesUnit(index string) grouping.WorkUnit {
	return grouping.WorkUnit{
		Base:  "cloud",
		Index: index,
		Inputs: []grouping.Input{
			input(grouping.RolePrimary, "cloud."+index+".vtk"),
			input(grouping.RoleSeed, "cloud."+index+".seed.lis"),
		},
		Output: "cloud." + index + ".flines",
	}
}

func mustTemplate(t *testing.T, raw string, vars map[string]string, roles ...string) *Template {
	t.Helper()
	tmpl, err := ParseTemplate(raw, vars, roles...)
	require.NoError(t, err)
	return tmpl
}

// fakeChecker marks units stale by index.
type fakeChecker struct {
	stale map[string]bool
	err   error
}

func (f fakeChecker) StaleUnits(_ context.Context, units []grouping.WorkUnit) ([]grouping.WorkUnit, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []grouping.WorkUnit
	for _, u := range units {
		if f.stale[u.Index] {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestParseTemplate_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", "   "},
		{"unknown placeholder", "{exe} -o {out}"},
		{"unbalanced", "{exe} -o {output"},
		{"stray close", "{exe} }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate(tt.raw, map[string]string{"exe": "./join_vtk.x"})
			assert.ErrorIs(t, err, ErrTemplate)
		})
	}
}

func TestRender_Merge(t *testing.T) {
	tmpl := mustTemplate(t, mergeCommand, map[string]string{"exe": "./join_vtk.x"}, grouping.RoleRank0)

	cmd, err := tmpl.Render(mergeUnit("0000"))
	require.NoError(t, err)
	assert.Equal(t, "./join_vtk.x -o merged/cloud.0000.vtk id0/cloud.0000.vtk id1/cloud-id1.0000.vtk", cmd)
}

func TestRender_Flines(t *testing.T) {
	vars := map[string]string{"exe": "./flines", "config": "input.fline"}
	tmpl := mustTemplate(t, flinesCommand, vars, grouping.RolePrimary, grouping.RoleSeed)

	cmd, err := tmpl.Render(flinesUnit("0005"))
	require.NoError(t, err)
	assert.Equal(t,
		"./flines -i input.fline files/vtk_file=cloud.0005.vtk files/out_file=cloud.0005.flines initial_condition/seed_file=cloud.0005.seed.lis",
		cmd)
}

func TestRender_MissingRole(t *testing.T) {
	tmpl := mustTemplate(t, "{exe} {seed}", map[string]string{"exe": "x"}, grouping.RoleSeed)

	_, err := tmpl.Render(mergeUnit("0000"))
	assert.ErrorIs(t, err, ErrTemplate)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "merged/cloud.0000.vtk", Quote("merged/cloud.0000.vtk"))
	assert.Equal(t, "'my run/cloud.0000.vtk'", Quote("my run/cloud.0000.vtk"))
	assert.Equal(t, `'it'\''s'`, Quote("it's"))
	assert.Equal(t, "''", Quote(""))
	assert.Equal(t, "a 'b c'", QuoteAll([]string{"a", "b c"}))
}

func TestJobs_OrderedByStep(t *testing.T) {
	tmpl := mustTemplate(t, mergeCommand, map[string]string{"exe": "./join_vtk.x"}, grouping.RoleRank0)
	builder := NewBuilder(tmpl, nil)

	jobs, err := builder.Jobs([]grouping.WorkUnit{mergeUnit("0010"), mergeUnit("0002"), mergeUnit("0007")})
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, "0002", jobs[0].Index)
	assert.Equal(t, "0007", jobs[1].Index)
	assert.Equal(t, "0010", jobs[2].Index)

	ids := make(map[string]bool)
	for _, j := range jobs {
		assert.Equal(t, StatusPending, j.Status)
		assert.Equal(t, ExitUnknown, j.ExitCode)
		assert.NotEmpty(t, j.ID)
		ids[j.ID] = true
	}
	assert.Len(t, ids, 3)

	assert.Equal(t, []string{"id0/cloud.0002.vtk", "id1/cloud-id1.0002.vtk"}, jobs[0].Inputs)
	assert.Equal(t, "merged/cloud.0002.vtk", jobs[0].Output)
}

func TestBuild_StaleOnly(t *testing.T) {
	tmpl := mustTemplate(t, mergeCommand, map[string]string{"exe": "./join_vtk.x"}, grouping.RoleRank0)
	builder := NewBuilder(tmpl, fakeChecker{stale: map[string]bool{"0001": true}})

	jobs, err := builder.Build(context.Background(), []grouping.WorkUnit{mergeUnit("0000"), mergeUnit("0001")})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"./join_vtk.x -o merged/cloud.0001.vtk id0/cloud.0001.vtk id1/cloud-id1.0001.vtk"}, Commands(jobs))
}

func TestBuild_NothingToDo(t *testing.T) {
	tmpl := mustTemplate(t, mergeCommand, map[string]string{"exe": "./join_vtk.x"}, grouping.RoleRank0)
	builder := NewBuilder(tmpl, fakeChecker{})

	jobs, err := builder.Build(context.Background(), []grouping.WorkUnit{mergeUnit("0000")})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestBuild_CheckerError(t *testing.T) {
	tmpl := mustTemplate(t, mergeCommand, map[string]string{"exe": "./join_vtk.x"}, grouping.RoleRank0)
	boom := errors.New("permission denied")
	builder := NewBuilder(tmpl, fakeChecker{err: boom})

	_, err := builder.Build(context.Background(), []grouping.WorkUnit{mergeUnit("0000")})
	assert.ErrorIs(t, err, boom)
}

func TestJob_Lifecycle(t *testing.T) {
	job := &Job{Base: "cloud", Index: "0003"}

	job.MarkRunning()
	assert.Equal(t, StatusRunning, job.Status)
	assert.False(t, job.Status.Terminal())

	job.Finish(3)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, 3, job.ExitCode)
	assert.True(t, job.Status.Terminal())
	assert.Equal(t, "failed", job.Status.String())
	assert.Equal(t, "cloud.0003", job.String())

	job.Finish(0)
	assert.Equal(t, StatusSucceeded, job.Status)
	assert.Equal(t, 1, CountStatus([]*Job{job, {}}, StatusSucceeded))
}
