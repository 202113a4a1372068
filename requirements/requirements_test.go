package requirements

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"deploykit/requirements/mock"
)

const manifest = "/home/deploy/mezzanine/myproj/requirements/project.txt"

func TestWithChangeDetection(t *testing.T) {
	type test struct {
		name          string
		path          string
		mockFn        func(ctx context.Context, t *testing.T, m *mock.MockReader)
		actionErr     error
		wantReinstall bool
		wantErr       string
	}
	pinned := "Django==1.8.4\n# comment\n\nMezzanine>=4.0,<4.1\n-e git+https://github.com/x/y.git@abc123#egg=y\n"
	tests := []test{
		{
			name: "unchanged and pinned",
			path: manifest,
			mockFn: func(ctx context.Context, t *testing.T, m *mock.MockReader) {
				m.EXPECT().ReadFile(ctx, manifest).Return(pinned, nil).Times(2)
			},
			wantReinstall: false,
		},
		{
			name: "unchanged with an unpinned line",
			path: manifest,
			mockFn: func(ctx context.Context, t *testing.T, m *mock.MockReader) {
				m.EXPECT().ReadFile(ctx, manifest).Return(pinned+"requests\n", nil).Times(2)
			},
			wantReinstall: true,
		},
		{
			name: "changed content",
			path: manifest,
			mockFn: func(ctx context.Context, t *testing.T, m *mock.MockReader) {
				gomock.InOrder(
					m.EXPECT().ReadFile(ctx, manifest).Return("Django==1.8.4\n", nil),
					m.EXPECT().ReadFile(ctx, manifest).Return("Django==1.8.5\n", nil),
				)
			},
			wantReinstall: true,
		},
		{
			name: "no manifest before the update",
			path: manifest,
			mockFn: func(ctx context.Context, t *testing.T, m *mock.MockReader) {
				m.EXPECT().ReadFile(ctx, manifest).Return("", errors.New("remote command \"cat\" exited with status 1"))
			},
			wantReinstall: false,
		},
		{
			name:          "empty manifest path",
			path:          "",
			mockFn:        func(ctx context.Context, t *testing.T, m *mock.MockReader) {},
			wantReinstall: false,
		},
		{
			name: "action failure",
			path: manifest,
			mockFn: func(ctx context.Context, t *testing.T, m *mock.MockReader) {
				m.EXPECT().ReadFile(ctx, manifest).Return(pinned, nil)
			},
			actionErr: errors.New("rsync failed"),
			wantErr:   "rsync failed",
		},
		{
			name: "manifest unreadable after the update",
			path: manifest,
			mockFn: func(ctx context.Context, t *testing.T, m *mock.MockReader) {
				gomock.InOrder(
					m.EXPECT().ReadFile(ctx, manifest).Return(pinned, nil),
					m.EXPECT().ReadFile(ctx, manifest).Return("", errors.New("gone")),
				)
			},
			wantErr: "unable to read " + manifest + " after update: gone",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			m := mock.NewMockReader(ctrl)
			tc.mockFn(ctx, t, m)

			var ran, reinstalled bool
			got, err := WithChangeDetection(ctx, m, tc.path,
				func(context.Context) error {
					ran = true
					return tc.actionErr
				},
				func(context.Context) error {
					reinstalled = true
					return nil
				})
			assert.True(t, ran)
			if tc.wantErr != "" {
				assert.EqualErrorf(t, err, tc.wantErr, "expected error message: %s", tc.wantErr)
				assert.False(t, reinstalled)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.wantReinstall, got)
			assert.Equal(t, tc.wantReinstall, reinstalled)
		})
	}
}

func TestPinned(t *testing.T) {
	type test struct {
		line string
		want bool
	}
	tests := []test{
		{line: "", want: true},
		{line: "   ", want: true},
		{line: "# Django", want: true},
		{line: "# requests>=2", want: true},
		{line: "Django==1.8.4", want: true},
		{line: "Django===1.8.4", want: true},
		{line: "Django~=1.8", want: true},
		{line: "Django!=1.9", want: true},
		{line: "Django<2", want: true},
		{line: "Django>1.7", want: true},
		{line: "Django >= 1.8, < 1.9", want: true},
		{line: "  Django==1.8.4  ", want: true},
		{line: "Django", want: false},
		{line: "Django # pin later, was ==1.8", want: false},
		{line: "Django==1.8 # latest LTS", want: true},
		{line: `requests ; python_version<"3"`, want: false},
		{line: `requests; sys_platform != "win32"`, want: false},
		{line: `requests==2.0 ; python_version<"3"`, want: true},
		{line: "-e git+https://github.com/x/y.git@v1.2#egg=y", want: true},
		{line: "--editable git+https://github.com/x/y.git@abc#egg=y", want: true},
		{line: "-e git+https://github.com/x/y.git#egg=y", want: false},
		{line: "-e ./local # see @owner", want: false},
		{line: "-r base.txt", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			assert.Equal(t, tc.want, Pinned(tc.line))
		})
	}
}

func TestUnpinned(t *testing.T) {
	got := Unpinned("Django==1.8\nrequests\n\n# note\n  pillow  \n")
	assert.Equal(t, []string{"requests", "pillow"}, got)
}
