package artifact

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/modestprophet/gonzo-pit-strategy/config"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

var (
	ErrMirrorHostRequired = errors.New("mirror host is required")
	ErrMirrorUserRequired = errors.New("mirror user is required")
)

const defaultMirrorTimeout = 15 * time.Second

// Mirror 把产出物目录通过 SFTP 同步到存储服务器。
// 密码认证按配置走；同步失败不影响本地产出物。
type Mirror struct {
	cfg config.MirrorConfig
}

// NewMirror 按应用配置构造镜像；未启用时返回 nil。
func NewMirror(cfg config.MirrorConfig) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Host == "" {
		return nil, ErrMirrorHostRequired
	}
	if cfg.User == "" {
		return nil, ErrMirrorUserRequired
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	return &Mirror{cfg: cfg}, nil
}

// Upload 上传 localDir 下的全部常规文件到 remote_root/version/ 下。
func (m *Mirror) Upload(localDir, version string) error {
	clientConfig := &ssh.ClientConfig{
		User: m.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(m.cfg.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         defaultMirrorTimeout,
	}

	address := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	sshClient, err := ssh.Dial("tcp", address, clientConfig)
	if err != nil {
		return fmt.Errorf("dial ssh failed: %w", err)
	}
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("create sftp client failed: %w", err)
	}
	defer sftpClient.Close()

	remoteDir := path.Join(m.cfg.RemoteRoot, version)
	if err := sftpClient.MkdirAll(remoteDir); err != nil {
		return fmt.Errorf("create remote directory failed: %w", err)
	}

	entries, err := os.ReadDir(localDir)
	if err != nil {
		return fmt.Errorf("read artifact dir failed: %w", err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := uploadFile(sftpClient, filepath.Join(localDir, entry.Name()), path.Join(remoteDir, entry.Name())); err != nil {
			return fmt.Errorf("upload %s failed: %w", entry.Name(), err)
		}
	}
	return nil
}

func uploadFile(client *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(filepath.Clean(localPath))
	if err != nil {
		return fmt.Errorf("open local file failed: %w", err)
	}
	defer src.Close()

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file failed: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write remote file failed: %w", err)
	}
	return nil
}
